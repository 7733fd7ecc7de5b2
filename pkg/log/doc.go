/*
Package log provides structured logging for AeroSuite built on zerolog.

Call Init once at process startup, then derive component-scoped child
loggers with WithComponent and the other With* helpers. Output is JSON in
production and human-readable console format otherwise.
*/
package log
