package store

import (
	"fmt"
	"strings"
)

// dialect rewrites the sqlite-flavoured queries the stores are written in
// for the active driver. Queries use `?` placeholders; postgres needs $n
// and explicit row locks on the merge path.
type dialect struct {
	driver string
}

func newDialect(driver string) dialect {
	d := strings.ToLower(strings.TrimSpace(driver))
	if d == "" {
		d = DriverSQLite
	}
	return dialect{driver: d}
}

func (d dialect) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
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

// forUpdate appends a row-lock clause where the engine relies on one.
// sqlite takes a database-level write lock per transaction, which already
// serializes the merge path.
func (d dialect) forUpdate(query string) string {
	if d.driver == DriverPostgres {
		return query + " FOR UPDATE"
	}
	return query
}
