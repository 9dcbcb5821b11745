// Package history manages conversation summaries across two sources: a
// locally persisted cache and the gateway's session API.
//
// The merge treats the server list as primary: server entries first, in the
// order received, followed by locally cached entries whose identifier the
// server did not report. A failed server fetch degrades to local entries
// only; it is never surfaced as a hard failure.
package history
