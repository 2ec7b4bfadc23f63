package sqldb

import (
	"fmt"
	"strings"

	"github.com/dhima/datman/pkg/config"
)

// Dialect renders the driver-specific parts of the generated SQL.
type Dialect interface {
	// Name is the canonical dialect name: "postgres", "mysql" or "sqlite3".
	Name() string
	// DriverName is the database/sql driver the dialect opens.
	DriverName() string
	// BindType is the sqlx bindvar style (sqlx.DOLLAR, sqlx.QUESTION, ...).
	BindType() int
	QuoteIdent(name string) string
	// MaxParams bounds the bind parameters of one statement.
	MaxParams() int
	// DSN builds a driver connection string from connection parameters.
	DSN(p config.Params) (string, error)

	// updateFromValues renders a bulk update joining the target table with a values list
	// of the given width and row count. Placeholders are '?' and are rebound by the caller.
	updateFromValues(table string, set, where, fields []string, rows [][]any) string
	// deleteDuplicates keeps the row with the highest physical row id per partition.
	deleteDuplicates(table string, partition []string) (string, error)
}

// DialectFor resolves a driver name from connection parameters.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "postgres", "postgresql", "pg":
		return Postgres{}, nil
	case "mysql", "mariadb":
		return MySQL{}, nil
	case "sqlite3", "sqlite":
		return SQLite{}, nil
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}
}

// placeholders renders "(?, ?, ...)" with n slots.
func placeholders(n int) string {
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + ")"
}
