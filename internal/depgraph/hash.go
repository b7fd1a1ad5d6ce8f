// Package depgraph builds the row-level history of a test run, derives
// the inter-transaction and inter-statement dependency graph from it, and
// checks the Adya-style isolation-anomaly predicates: G1a, G1b, G1c,
// G2-item, GSIa, GSIb.
package depgraph

import (
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// hashCache memoizes RowHash's canonical-string -> hash mapping. A long
// history repeatedly re-hashes identical unchanged rows (an
// after-write-read's content reappearing in every later version-set-read
// of the same row), so this bounds that repeated work without affecting
// any verdict: a cache miss just recomputes the same value a hit would
// have returned. Sized generously enough that one test run's distinct
// rows rarely evict each other.
var hashCache, _ = lru.New[string, uint64](8192)

// RowHash hashes a row's column values with a stable rolling recurrence
// (hash = hash*131 + byte), walked over columns in sorted-key order so the
// same row always hashes the same way regardless of driver-returned column
// order.
func RowHash(row Row) uint64 {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte(':')
		fmt.Fprintf(&b, "%v", row[k])
		b.WriteByte(';')
	}
	canon := b.String()

	if h, ok := hashCache.Get(canon); ok {
		return h
	}

	var h uint64
	for i := 0; i < len(canon); i++ {
		h = h*131 + uint64(canon[i])
	}
	hashCache.Add(canon, h)
	return h
}

// intColumn extracts column as an int64, accepting any of the numeric
// shapes a driver's Row might hand back (int64 from most SQL drivers,
// int/float64 from JSON-shaped test fixtures).
func intColumn(row Row, column string) (int64, bool) {
	v, ok := row[column]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
