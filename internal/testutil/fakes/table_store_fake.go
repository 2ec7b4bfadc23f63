package fakes

import (
	"context"
	"sync"

	"github.com/dhima/datman/pkg/sqldb"
)

// TableCall is one call received by FakeTableStore.
type TableCall struct {
	Op        string
	Table     string
	Data      sqldb.Batch
	Set       []string
	Where     []string
	Partition []string
	PageSize  int
}

// FakeTableStore records table operations and returns canned results.
type FakeTableStore struct {
	mu         sync.Mutex
	Calls      []TableCall
	Rows       int64
	Duplicates *sqldb.Frame
	Err        error
}

func (f *FakeTableStore) record(call TableCall) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, call)
}

// LastCall returns the most recent call, or a zero TableCall.
func (f *FakeTableStore) LastCall() TableCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Calls) == 0 {
		return TableCall{}
	}
	return f.Calls[len(f.Calls)-1]
}

func (f *FakeTableStore) InsertBatch(_ context.Context, data sqldb.Batch, table string, pageSize int) (int64, error) {
	f.record(TableCall{Op: "insert", Table: table, Data: data, PageSize: pageSize})
	return f.Rows, f.Err
}

func (f *FakeTableStore) UpdateBatch(_ context.Context, data sqldb.Batch, set, where []string, table string, pageSize int) (int64, error) {
	f.record(TableCall{Op: "update", Table: table, Data: data, Set: set, Where: where, PageSize: pageSize})
	return f.Rows, f.Err
}

func (f *FakeTableStore) DeleteBatch(_ context.Context, data sqldb.Batch, table string, pageSize int) (int64, error) {
	f.record(TableCall{Op: "delete", Table: table, Data: data, PageSize: pageSize})
	return f.Rows, f.Err
}

func (f *FakeTableStore) FindDuplicateRows(_ context.Context, table string, partition []string) (*sqldb.Frame, error) {
	f.record(TableCall{Op: "find_duplicates", Table: table, Partition: partition})
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Duplicates == nil {
		return &sqldb.Frame{Columns: []string{}, Rows: [][]any{}}, nil
	}
	return f.Duplicates, nil
}

func (f *FakeTableStore) DeleteDuplicateRows(_ context.Context, table string, partition []string) (int64, error) {
	f.record(TableCall{Op: "delete_duplicates", Table: table, Partition: partition})
	return f.Rows, f.Err
}

// CallCount returns the number of calls received so far.
func (f *FakeTableStore) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
