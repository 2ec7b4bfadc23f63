package sqldb

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/dhima/datman/pkg/config"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// ErrUnsupported is returned when a dialect cannot express an operation.
var ErrUnsupported = errors.New("operation not supported by dialect")

// MySQL targets MySQL and MariaDB through go-sql-driver/mysql.
type MySQL struct{}

func (MySQL) Name() string       { return "mysql" }
func (MySQL) DriverName() string { return "mysql" }
func (MySQL) BindType() int      { return sqlx.QUESTION }
func (MySQL) MaxParams() int     { return 65535 }

func (MySQL) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// DSN maps host, port, user, password and dbname (or database) onto a driver config;
// any other key is passed through as a DSN parameter.
func (MySQL) DSN(p config.Params) (string, error) {
	if dsn, ok := p.String("dsn"); ok {
		return dsn, nil
	}
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.User, _ = p.String("user")
	cfg.Passwd, _ = p.String("password")

	host, ok := p.String("host")
	if !ok {
		host = "127.0.0.1"
	}
	port, ok := p.String("port")
	if !ok {
		port = "3306"
	}
	cfg.Addr = net.JoinHostPort(host, port)

	if db, ok := p.String("dbname"); ok {
		cfg.DBName = db
	} else if db, ok := p.String("database"); ok {
		cfg.DBName = db
	}

	rest := p.Without("driver", "user", "password", "host", "port", "dbname", "database")
	if len(rest) > 0 {
		cfg.Params = make(map[string]string, len(rest))
		for _, key := range rest.Keys() {
			if v, ok := rest.String(key); ok {
				cfg.Params[key] = v
			}
		}
	}
	return cfg.FormatDSN(), nil
}

// updateFromValues joins against a UNION ALL derived table; MySQL has no
// UPDATE ... FROM and no column aliases on VALUES.
func (MySQL) updateFromValues(table string, set, where, fields []string, rows [][]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s JOIN (", table)
	for i := range rows {
		if i > 0 {
			b.WriteString(" UNION ALL ")
		}
		b.WriteString("SELECT ")
		for j, f := range fields {
			if j > 0 {
				b.WriteString(", ")
			}
			if i == 0 {
				fmt.Fprintf(&b, "? AS %s", f)
			} else {
				b.WriteString("?")
			}
		}
	}
	b.WriteString(") AS data ON ")
	writeJoin(&b, table, where, " = ")
	b.WriteString(" SET ")
	for i, col := range set {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s.%s = data.%s", table, col, col)
	}
	return b.String()
}

// MySQL tables have no physical row id to break ties between identical rows.
func (MySQL) deleteDuplicates(string, []string) (string, error) {
	return "", ErrUnsupported
}
