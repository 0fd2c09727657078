// Package mirror keeps backend entity tables usable offline. Each Set
// pairs a backend table with a local SQLite mirror: reads prefer the
// backend and replace the mirror wholesale on success, while an
// unreachable or rejecting backend degrades the set to serving the
// mirror until a refresh succeeds. Realtime inserts flow through a Feed
// that de-duplicates by entity ID and fans changes out to subscribers.
package mirror
