package sqldb

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// insertTemplate renders "INSERT INTO t (c1, ...) VALUES (:c1, ...)"; sqlx expands the
// VALUES tuple once per bound record.
func insertTemplate(table string, quoted, cols []string) string {
	named := make([]string, len(cols))
	for i, c := range cols {
		named[i] = ":" + c
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(quoted, ", "), strings.Join(named, ", "))
}

func bindInsert(d Dialect, tmpl string, rows []Record) (string, []any, error) {
	page := make([]map[string]any, len(rows))
	for i, r := range rows {
		page[i] = r
	}
	// Bind with '?' and rebind afterwards so repeated VALUES tuples are numbered in order.
	query, args, err := sqlx.BindNamed(sqlx.QUESTION, tmpl, page)
	if err != nil {
		return "", nil, err
	}
	return sqlx.Rebind(d.BindType(), query), args, nil
}

// updateStatement binds one page of records against the bulk update form of the dialect.
func updateStatement(d Dialect, table string, set, where []string, rows []Record) (string, []any, error) {
	fields := unionColumns(set, where)
	qset, err := quoteColumns("update batch", d, set)
	if err != nil {
		return "", nil, err
	}
	qwhere, err := quoteColumns("update batch", d, where)
	if err != nil {
		return "", nil, err
	}
	qfields, err := quoteColumns("update batch", d, fields)
	if err != nil {
		return "", nil, err
	}

	values := make([][]any, len(rows))
	args := make([]any, 0, len(rows)*len(fields))
	for i, r := range rows {
		row := make([]any, len(fields))
		for j, f := range fields {
			row[j] = normalizeValue(r[f])
		}
		values[i] = row
		args = append(args, row...)
	}

	query := d.updateFromValues(table, qset, qwhere, qfields, values)
	return sqlx.Rebind(d.BindType(), query), args, nil
}

func deleteStatement(d Dialect, table, key string, keys []any) string {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s IN %s", table, key, placeholders(len(keys)))
	return sqlx.Rebind(d.BindType(), query)
}

func findDuplicatesStatement(table string, partition []string) string {
	order := make([]string, len(partition))
	for i, c := range partition {
		order[i] = "dup." + c
	}
	return fmt.Sprintf(
		"SELECT * FROM (SELECT %s.*, COUNT(*) OVER (PARTITION BY %s) AS duplicate_count FROM %s) AS dup "+
			"WHERE dup.duplicate_count > 1 ORDER BY %s",
		table, strings.Join(partition, ", "), table, strings.Join(order, ", "))
}

func unionColumns(groups ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, g := range groups {
		for _, c := range g {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}
