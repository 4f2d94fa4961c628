package persistence

import (
	"fmt"
	"strings"
)

// Dialect abstracts the SQL differences between the supported databases.
type Dialect interface {
	Driver() string
	AutoIncrementPK() string
	JSONType() string
	// Rebind rewrites ? placeholders into the dialect's form.
	Rebind(query string) string
}

type sqliteDialect struct{}

func (sqliteDialect) Driver() string             { return "sqlite" }
func (sqliteDialect) AutoIncrementPK() string    { return "INTEGER PRIMARY KEY AUTOINCREMENT" }
func (sqliteDialect) JSONType() string           { return "TEXT" }
func (sqliteDialect) Rebind(query string) string { return query }

type postgresDialect struct{}

func (postgresDialect) Driver() string          { return "pgx" }
func (postgresDialect) AutoIncrementPK() string { return "BIGSERIAL PRIMARY KEY" }
func (postgresDialect) JSONType() string        { return "JSONB" }
func (postgresDialect) Rebind(query string) string {
	return Rebind(query)
}

// Rebind rewrites ? placeholders to $1, $2, ... for PostgreSQL.
func Rebind(query string) string {
	n := 0
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}
