package sqldb

import (
	"fmt"
	"strings"
	"time"

	"github.com/dhima/datman/pkg/config"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Postgres targets PostgreSQL through lib/pq.
type Postgres struct{}

func (Postgres) Name() string       { return "postgres" }
func (Postgres) DriverName() string { return "postgres" }
func (Postgres) BindType() int      { return sqlx.DOLLAR }
func (Postgres) MaxParams() int     { return 65535 }

func (Postgres) QuoteIdent(name string) string { return pq.QuoteIdentifier(name) }

// DSN renders libpq key/value conninfo. A "dsn" key is used verbatim; "database" is
// accepted as an alias of "dbname".
func (Postgres) DSN(p config.Params) (string, error) {
	if dsn, ok := p.String("dsn"); ok {
		return dsn, nil
	}
	rest := p.Without("driver")
	if db, ok := rest.String("database"); ok {
		if _, has := rest["dbname"]; !has {
			rest["dbname"] = db
		}
		delete(rest, "database")
	}
	parts := make([]string, 0, len(rest))
	for _, key := range rest.Keys() {
		v, ok := rest.String(key)
		if !ok {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%s", key, conninfoValue(v)))
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("no connection parameters")
	}
	return strings.Join(parts, " "), nil
}

func conninfoValue(v string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
	return "'" + escaped + "'"
}

// updateFromValues casts every placeholder from its Go type, since untyped parameters in a
// VALUES list resolve to text and would not assign to numeric or temporal columns.
// NULLs take the cast of the first non-NULL value of their column in the page. A column
// that is NULL in every row of the page is referenced as a NULL literal instead.
func (d Postgres) updateFromValues(table string, set, where, fields []string, rows [][]any) string {
	casts, allNull := columnCasts(fields, rows)
	source := func(col string) string {
		for j, f := range fields {
			if f == col && allNull[j] {
				return "NULL"
			}
		}
		return "data." + col
	}

	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s SET ", table)
	for i, col := range set {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s = %s", col, source(col))
	}
	b.WriteString(" FROM (VALUES ")
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?" + casts[j])
		}
		b.WriteString(")")
	}
	fmt.Fprintf(&b, ") AS data(%s) WHERE ", strings.Join(fields, ", "))
	for i, col := range where {
		if i > 0 {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(&b, "%s.%s = %s", table, col, source(col))
	}
	return b.String()
}

func (d Postgres) deleteDuplicates(table string, partition []string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "DELETE FROM %s a USING %s b WHERE a.ctid < b.ctid", table, table)
	for _, col := range partition {
		fmt.Fprintf(&b, " AND a.%s IS NOT DISTINCT FROM b.%s", col, col)
	}
	return b.String(), nil
}

// columnCasts picks one cast per field from the first non-NULL value in that column and
// reports the fields that hold no value at all.
func columnCasts(fields []string, rows [][]any) ([]string, []bool) {
	casts := make([]string, len(fields))
	allNull := make([]bool, len(fields))
	for j := range fields {
		allNull[j] = true
		for _, row := range rows {
			if j < len(row) && row[j] != nil {
				casts[j] = pgCast(row[j])
				allNull[j] = false
				break
			}
		}
	}
	return casts, allNull
}

func pgCast(v any) string {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return "::bigint"
	case float32, float64:
		return "::double precision"
	case bool:
		return "::boolean"
	case time.Time:
		return "::timestamptz"
	case []byte:
		return "::bytea"
	case string:
		return "::text"
	default:
		return ""
	}
}

// writeJoin renders "table.col <op> data.col" predicates joined with AND.
func writeJoin(b *strings.Builder, table string, cols []string, op string) {
	for i, col := range cols {
		if i > 0 {
			b.WriteString(" AND ")
		}
		fmt.Fprintf(b, "%s.%s%sdata.%s", table, col, op, col)
	}
}
