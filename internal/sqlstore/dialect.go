package sqlstore

import (
	"strconv"
	"strings"
)

// dialect captures the differences between the SQL engines behind Backend.
type dialect struct {
	driver string
	// numbered placeholders ($1, $2, ...) instead of ?.
	numbered bool
	// JSONL files are the source of truth and are rewritten after writes.
	jsonl bool
}

var (
	sqliteDialect   = dialect{driver: "sqlite", jsonl: true}
	postgresDialect = dialect{driver: "pgx", numbered: true}
)

// rebind rewrites ? placeholders for the dialect. Queries in this package
// never contain a literal question mark.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
