package scheduler

import "context"

// Deduper removes duplicate rows from a table. sqldb.Client satisfies it.
type Deduper interface {
	DeleteDuplicateRows(ctx context.Context, table string, partition []string) (int64, error)
}
