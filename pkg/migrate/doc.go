/*
Package migrate is the database migration runner.

Migrations are named, ordered and idempotent relative to the changelog:
the "migrations" bucket records {name, appliedAt} per applied entry, and
each migration runs in the same transaction as its changelog write.
*/
package migrate
