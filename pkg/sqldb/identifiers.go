package sqldb

import (
	"regexp"
	"strings"

	"github.com/dhima/datman/pkg/dataerr"
)

// Table and column names are spliced into SQL text, so they must be plain identifiers.
// Callers remain responsible for deciding which tables a request may touch.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkIdent(op, kind, name string) error {
	if !identPattern.MatchString(name) {
		return dataerr.Validation(op, "invalid %s name %q", kind, name)
	}
	return nil
}

// quoteTable validates and quotes a table name, optionally schema-qualified ("schema.table").
func quoteTable(op string, d Dialect, table string) (string, error) {
	parts := strings.Split(table, ".")
	if len(parts) > 2 {
		return "", dataerr.Validation(op, "invalid table name %q", table)
	}
	for i, part := range parts {
		if err := checkIdent(op, "table", part); err != nil {
			return "", err
		}
		parts[i] = d.QuoteIdent(part)
	}
	return strings.Join(parts, "."), nil
}

func quoteColumns(op string, d Dialect, cols []string) ([]string, error) {
	out := make([]string, len(cols))
	for i, c := range cols {
		if err := checkIdent(op, "column", c); err != nil {
			return nil, err
		}
		out[i] = d.QuoteIdent(c)
	}
	return out, nil
}
