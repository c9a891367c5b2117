// Package sqlrepo implements repository.Repository on top of database/sql,
// supporting both sqlite (modernc.org/sqlite, pure Go, no cgo) and
// postgres (jackc/pgx/v5's stdlib adapter) through a single code path.
//
// Grounded on the original system's generic SQL layer
// (original_source/internal/db/sql/{sql_queries,sql_params,sql_row}.hpp):
// queries are written once with ordered placeholders and a Dialect
// rewrites them to the driver's native placeholder syntax ("?" for
// sqlite, "$1 $2 ..." for postgres), exactly as the C++ Param/Row
// abstraction existed so the same query text binds against either driver.
package sqlrepo

import (
	"fmt"
	"strings"
)

// Dialect names which SQL placeholder and DDL flavor a *Repository speaks.
type Dialect uint8

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// rewrite turns a query written with "?" placeholders into the dialect's
// native placeholder syntax. sqlite already uses "?"; postgres needs
// "$1", "$2", ... in positional order.
func (d Dialect) rewrite(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// jsonType returns the column type used for JSON-encoded columns.
func (d Dialect) jsonType() string {
	if d == DialectPostgres {
		return "JSONB"
	}
	return "TEXT"
}

func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}
