package sqldb

import (
	"context"
	"fmt"

	"github.com/dhima/datman/pkg/dataerr"
	"github.com/dhima/datman/platform/events"
	"go.uber.org/zap"
)

// pageStatement renders the statement and arguments for one page of rows.
type pageStatement func(d Dialect, rows []Record) (string, []any, error)

// InsertBatch inserts data into table, at most pageSize records per statement.
// Empty input succeeds without touching the database. Pages commit independently: when a
// page fails, the returned count covers the pages that were already written.
func (c *Client) InsertBatch(ctx context.Context, data Batch, table string, pageSize int) (int64, error) {
	const op = "insert batch"

	if data == nil {
		return 0, c.fail(op, dataerr.InvalidShape(op, "unsupported input shape %s", shapeOf(data)))
	}
	cols, rows := data.normalize()
	if len(rows) == 0 {
		return 0, nil
	}
	if len(cols) == 0 {
		return 0, c.fail(op, dataerr.InvalidShape(op, "%s has rows but no columns", shapeOf(data)), zap.String("table", table))
	}
	if err := checkColumns(op, cols); err != nil {
		return 0, c.fail(op, err, zap.String("table", table))
	}

	stmt := func(d Dialect, page []Record) (string, []any, error) {
		qtable, err := quoteTable(op, d, table)
		if err != nil {
			return "", nil, err
		}
		qcols, err := quoteColumns(op, d, cols)
		if err != nil {
			return "", nil, err
		}
		return bindInsert(d, insertTemplate(qtable, qcols, cols), page)
	}

	n, err := c.runPages(ctx, op, table, rows, len(cols), pageSize, stmt)
	c.stats.inserted.Add(n)
	if err != nil {
		return n, err
	}
	c.notify(ctx, table, events.OperationInsert, n)
	return n, nil
}

// UpdateBatch updates table from records, matching rows on whereColumns and assigning
// setColumns. Only Records input is accepted and every record must carry every set and
// where column; an explicit nil assigns NULL. Each page is one bulk statement joining the
// table with a values list.
func (c *Client) UpdateBatch(ctx context.Context, data Batch, setColumns, whereColumns []string, table string, pageSize int) (int64, error) {
	const op = "update batch"

	recs, ok := data.(Records)
	if !ok {
		return 0, c.fail(op, dataerr.InvalidShape(op, "update requires records, got %s", shapeOf(data)))
	}
	if len(setColumns) == 0 {
		return 0, c.fail(op, dataerr.Validation(op, "no columns to set"))
	}
	if len(whereColumns) == 0 {
		return 0, c.fail(op, dataerr.Validation(op, "no columns to match on"))
	}
	fields := unionColumns(setColumns, whereColumns)
	if err := checkColumns(op, fields); err != nil {
		return 0, c.fail(op, err, zap.String("table", table))
	}
	if len(recs) == 0 {
		return 0, nil
	}
	if err := checkRecordFields(op, recs, fields); err != nil {
		return 0, c.fail(op, err, zap.String("table", table))
	}

	stmt := func(d Dialect, page []Record) (string, []any, error) {
		qtable, err := quoteTable(op, d, table)
		if err != nil {
			return "", nil, err
		}
		return updateStatement(d, qtable, setColumns, whereColumns, page)
	}

	n, err := c.runPages(ctx, op, table, recs, len(fields), pageSize, stmt)
	c.stats.updated.Add(n)
	if err != nil {
		return n, err
	}
	c.notify(ctx, table, events.OperationUpdate, n)
	return n, nil
}

// DeleteBatch deletes the rows of table whose key matches a record. Every record must hold
// exactly one field and all records must name the same key column.
func (c *Client) DeleteBatch(ctx context.Context, data Batch, table string, pageSize int) (int64, error) {
	const op = "delete batch"

	recs, ok := data.(Records)
	if !ok {
		return 0, c.fail(op, dataerr.InvalidShape(op, "delete requires records, got %s", shapeOf(data)))
	}
	if len(recs) == 0 {
		return 0, nil
	}
	key, err := deleteKey(op, recs)
	if err != nil {
		return 0, c.fail(op, err, zap.String("table", table))
	}

	stmt := func(d Dialect, page []Record) (string, []any, error) {
		qtable, err := quoteTable(op, d, table)
		if err != nil {
			return "", nil, err
		}
		keys := make([]any, len(page))
		for i, r := range page {
			keys[i] = normalizeValue(r[key])
		}
		return deleteStatement(d, qtable, d.QuoteIdent(key), keys), keys, nil
	}

	n, err := c.runPages(ctx, op, table, recs, 1, pageSize, stmt)
	c.stats.deleted.Add(n)
	if err != nil {
		return n, err
	}
	c.notify(ctx, table, events.OperationDelete, n)
	return n, nil
}

// deleteKey returns the single key column shared by every record.
func deleteKey(op string, recs Records) (string, error) {
	var key string
	for i, r := range recs {
		if len(r) != 1 {
			return "", dataerr.Validation(op, "record %d has %d fields, delete needs exactly one key field", i, len(r))
		}
		for k := range r {
			if i == 0 {
				key = k
			} else if k != key {
				return "", dataerr.Validation(op, "record %d uses key %q, expected %q", i, k, key)
			}
		}
	}
	if err := checkIdent(op, "column", key); err != nil {
		return "", err
	}
	return key, nil
}

// checkRecordFields rejects the batch when any record lacks one of fields.
func checkRecordFields(op string, recs Records, fields []string) error {
	for i, r := range recs {
		for _, f := range fields {
			if _, ok := r[f]; !ok {
				return dataerr.Validation(op, "record %d has no value for column %q", i, f)
			}
		}
	}
	return nil
}

func checkColumns(op string, cols []string) error {
	for _, c := range cols {
		if err := checkIdent(op, "column", c); err != nil {
			return err
		}
	}
	return nil
}

// runPages executes one statement per page and sums the affected rows.
func (c *Client) runPages(ctx context.Context, op, table string, rows []Record, width, pageSize int, stmt pageStatement) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.conn(ctx, op)
	if err != nil {
		return 0, err
	}

	size := clampPageSize(st.dialect, pageSize, width)
	pages := pageCount(len(rows), size)

	var total int64
	for page := 0; page < pages; page++ {
		start, end := pageBounds(page, size, len(rows))

		query, args, err := stmt(st.dialect, rows[start:end])
		if err != nil {
			if dataerr.KindOf(err) != 0 {
				return total, c.fail(op, err, zap.String("table", table))
			}
			return total, c.fail(op, dataerr.Driver(op, fmt.Errorf("build page %d of %d: %w", page+1, pages, err)),
				zap.String("table", table))
		}

		res, err := st.db.ExecContext(ctx, query, args...)
		if err != nil {
			fields := []zap.Field{zap.String("table", table), zap.Int("page", page+1), zap.Int("pages", pages)}
			if c.logPayload {
				fields = append(fields, zap.Any("records", rows[start:end]))
			}
			return total, c.fail(op, dataerr.Driver(op, fmt.Errorf("page %d of %d: %w", page+1, pages, err)), fields...)
		}
		if n, err := res.RowsAffected(); err == nil {
			total += n
		}
	}

	c.logger.Debug("batch complete",
		zap.String("op", op),
		zap.String("table", table),
		zap.Int("rows", len(rows)),
		zap.Int("pages", pages),
		zap.Int64("affected", total))
	return total, nil
}

// clampPageSize applies the default and keeps a page under the dialect's bind-parameter limit.
func clampPageSize(d Dialect, pageSize, width int) int {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if width <= 0 {
		return pageSize
	}
	if limit := d.MaxParams() / width; pageSize > limit {
		pageSize = limit
	}
	if pageSize < 1 {
		pageSize = 1
	}
	return pageSize
}
