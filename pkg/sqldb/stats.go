package sqldb

import "sync/atomic"

type counters struct {
	inserted   atomic.Int64
	updated    atomic.Int64
	deleted    atomic.Int64
	duplicates atomic.Int64
	failures   atomic.Int64
}

// Stats is a snapshot of a client's lifetime counters.
type Stats struct {
	RowsInserted      int64 `json:"rows_inserted"`
	RowsUpdated       int64 `json:"rows_updated"`
	RowsDeleted       int64 `json:"rows_deleted"`
	DuplicatesRemoved int64 `json:"duplicates_removed"`
	FailedOperations  int64 `json:"failed_operations"`
}

// Stats returns the current counters.
func (c *Client) Stats() Stats {
	return Stats{
		RowsInserted:      c.stats.inserted.Load(),
		RowsUpdated:       c.stats.updated.Load(),
		RowsDeleted:       c.stats.deleted.Load(),
		DuplicatesRemoved: c.stats.duplicates.Load(),
		FailedOperations:  c.stats.failures.Load(),
	}
}
