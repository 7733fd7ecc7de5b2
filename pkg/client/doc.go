/*
Package client is a typed Go client for the platform HTTP API.

Error envelopes decode back into classified errors, so callers can
branch on the same kinds the server raised.
*/
package client
