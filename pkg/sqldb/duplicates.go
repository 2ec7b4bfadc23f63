package sqldb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dhima/datman/pkg/dataerr"
	"github.com/dhima/datman/platform/events"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// DuplicateCountColumn is appended to every row returned by FindDuplicateRows.
const DuplicateCountColumn = "duplicate_count"

// FindDuplicateRows returns the rows of table that share their partition column values
// with at least one other row, ordered by the partition columns.
func (c *Client) FindDuplicateRows(ctx context.Context, table string, partition []string) (*Frame, error) {
	const op = "find duplicates"

	if err := checkPartition(op, partition); err != nil {
		return nil, c.fail(op, err, zap.String("table", table))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.conn(ctx, op)
	if err != nil {
		return nil, err
	}
	qtable, qcols, err := quotePartition(op, st.dialect, table, partition)
	if err != nil {
		return nil, c.fail(op, err, zap.String("table", table))
	}

	rows, err := st.db.QueryxContext(ctx, findDuplicatesStatement(qtable, qcols))
	if err != nil {
		return nil, c.fail(op, dataerr.Driver(op, err), zap.String("table", table))
	}
	defer rows.Close()

	frame, err := scanFrame(rows)
	if err != nil {
		return nil, c.fail(op, dataerr.Driver(op, err), zap.String("table", table))
	}
	return frame, nil
}

// DeleteDuplicateRows keeps one row per partition, the one with the highest physical row
// id, and deletes the others. It returns the number of rows removed.
func (c *Client) DeleteDuplicateRows(ctx context.Context, table string, partition []string) (int64, error) {
	const op = "delete duplicates"

	if err := checkPartition(op, partition); err != nil {
		return 0, c.fail(op, err, zap.String("table", table))
	}

	n, err := c.deleteDuplicates(ctx, op, table, partition)
	if err != nil {
		return 0, err
	}
	c.stats.duplicates.Add(n)
	c.notify(ctx, table, events.OperationDeleteDuplicates, n)
	return n, nil
}

func (c *Client) deleteDuplicates(ctx context.Context, op, table string, partition []string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.conn(ctx, op)
	if err != nil {
		return 0, err
	}
	qtable, qcols, err := quotePartition(op, st.dialect, table, partition)
	if err != nil {
		return 0, c.fail(op, err, zap.String("table", table))
	}

	query, err := st.dialect.deleteDuplicates(qtable, qcols)
	if errors.Is(err, ErrUnsupported) {
		return 0, c.fail(op, dataerr.New(dataerr.KindValidation, op,
			fmt.Errorf("%s: %w", st.dialect.Name(), err)), zap.String("table", table))
	}
	if err != nil {
		return 0, c.fail(op, dataerr.Driver(op, err), zap.String("table", table))
	}

	res, err := st.db.ExecContext(ctx, query)
	if err != nil {
		return 0, c.fail(op, dataerr.Driver(op, err), zap.String("table", table))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, c.fail(op, dataerr.Driver(op, fmt.Errorf("rows affected: %w", err)), zap.String("table", table))
	}
	c.logger.Info("duplicate rows removed", zap.String("table", table), zap.Strings("partition", partition), zap.Int64("rows", n))
	return n, nil
}

func checkPartition(op string, partition []string) error {
	if len(partition) == 0 {
		return dataerr.Validation(op, "no partition columns")
	}
	return checkColumns(op, partition)
}

func quotePartition(op string, d Dialect, table string, partition []string) (string, []string, error) {
	qtable, err := quoteTable(op, d, table)
	if err != nil {
		return "", nil, err
	}
	qcols, err := quoteColumns(op, d, partition)
	if err != nil {
		return "", nil, err
	}
	return qtable, qcols, nil
}

// scanFrame reads every row of rows into a Frame.
func scanFrame(rows *sqlx.Rows) (*Frame, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("read column types: %w", err)
	}
	binary := make([]bool, len(types))
	for i, ct := range types {
		binary[i] = isBinaryType(ct.DatabaseTypeName())
	}

	frame := &Frame{Columns: cols, Rows: make([][]any, 0)}
	for rows.Next() {
		row, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		frame.Rows = append(frame.Rows, scannedValues(row, binary))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return frame, nil
}

// scannedValues turns driver byte slices into strings outside binary columns; MySQL
// reports text columns as bytes.
func scannedValues(row []any, binary []bool) []any {
	for i, v := range row {
		if b, ok := v.([]byte); ok && !(i < len(binary) && binary[i]) {
			row[i] = string(b)
		}
	}
	return row
}

func isBinaryType(name string) bool {
	name = strings.ToUpper(name)
	return strings.Contains(name, "BLOB") || strings.Contains(name, "BINARY") || name == "BYTEA"
}
