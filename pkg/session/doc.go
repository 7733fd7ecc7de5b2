/*
Package session implements AeroSuite's distributed session store.

Sessions live in Redis so every worker process sees the same state. A
record carries both an absolute expiry (set at creation) and a sliding
idle window enforced through the Redis key TTL; Touch extends the idle
window but never past the absolute expiry. Each session is bound to a
hash of stable client attributes — a load presenting a different
fingerprint revokes the session and is denied. Record updates use
compare-and-set (WATCH/MULTI); there are no cross-session locks.
*/
package session
