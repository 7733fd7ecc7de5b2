/*
Package apperr defines AeroSuite's error taxonomy.

Every error surfaced by the domain, service, and runtime layers carries a
Kind that the transport layer maps to an HTTP status and the retry layer
uses to decide whether an idempotent read may be retried. Errors wrap their
cause and remain compatible with errors.Is and errors.As.
*/
package apperr
