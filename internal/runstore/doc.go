// Package runstore persists validated configuration snapshots per
// experiment run in a SQLite database. Each run gets a UUID, the full
// resolved document as JSON, and a few headline columns for listing.
// A lock file serializes writers so concurrent CLI invocations cannot
// interleave inserts and prunes.
package runstore
