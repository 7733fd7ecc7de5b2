/*
Package api is the HTTP surface of one worker process.

Every request flows through the same middleware chain: request id,
panic recovery, structured access log, metrics. Failures render one
envelope shape with a machine-readable code and the request id; lists
render one page envelope. Routes whose backing dependency was not
configured are simply not mounted.
*/
package api
