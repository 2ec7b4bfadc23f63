package sqldb

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/dhima/datman/pkg/config"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite targets SQLite databases through mattn/go-sqlite3.
type SQLite struct{}

func (SQLite) Name() string       { return "sqlite3" }
func (SQLite) DriverName() string { return "sqlite3" }
func (SQLite) BindType() int      { return sqlx.QUESTION }
func (SQLite) MaxParams() int     { return 32766 }

func (SQLite) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// DSN uses "dsn" verbatim, otherwise the file named by "database", "dbname" or "path";
// remaining keys become query options such as _busy_timeout.
func (SQLite) DSN(p config.Params) (string, error) {
	if dsn, ok := p.String("dsn"); ok {
		return dsn, nil
	}
	var file string
	for _, key := range []string{"database", "dbname", "path"} {
		if v, ok := p.String(key); ok {
			file = v
			break
		}
	}
	if file == "" {
		return "", fmt.Errorf("sqlite3 requires a database path")
	}
	rest := p.Without("driver", "database", "dbname", "path")
	if len(rest) == 0 {
		return file, nil
	}
	q := url.Values{}
	for _, key := range rest.Keys() {
		if v, ok := rest.String(key); ok {
			q.Set(key, v)
		}
	}
	return file + "?" + q.Encode(), nil
}

func (SQLite) updateFromValues(table string, set, where, fields []string, rows [][]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "WITH data(%s) AS (VALUES ", strings.Join(fields, ", "))
	for i := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(placeholders(len(fields)))
	}
	fmt.Fprintf(&b, ") UPDATE %s SET ", table)
	for i, col := range set {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s = data.%s", col, col)
	}
	b.WriteString(" FROM data WHERE ")
	writeJoin(&b, table, where, " = ")
	return b.String()
}

func (SQLite) deleteDuplicates(table string, partition []string) (string, error) {
	return fmt.Sprintf("DELETE FROM %s WHERE rowid NOT IN (SELECT MAX(rowid) FROM %s GROUP BY %s)",
		table, table, strings.Join(partition, ", ")), nil
}
