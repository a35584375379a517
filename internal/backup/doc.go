// Package backup provides file-based snapshots of editable site content.
//
// Every write to a category produces an immutable record named
// {category}_{YYYYMMDD_HHMMSS}.json and overwrites {category}_latest.json with
// the same stamped payload. Records are pretty-printed UTF-8 JSON and are never
// modified or removed by the store.
//
// All operations are fail-soft: a failed backup or restore is reported through
// WriteResult and ReadResult instead of being propagated, so callers can treat
// backups as a side channel to the primary save.
package backup
