package instrument

import (
	"strings"

	"github.com/txnfuzz/txnfuzz/internal/catalog"
)

// referencedTables returns every base table name that appears as a
// whole-word token in text, excluding exclude: a textual scan that
// discovers the other tables a version-set-read needs to cover, used when
// the statement isn't one of the structured write forms this package
// already has a parsed Node for.
func referencedTables(cat *catalog.Catalog, text string, exclude string) []string {
	var out []string
	for _, t := range cat.BaseTables() {
		if t.Name == exclude {
			continue
		}
		if containsToken(text, t.Name) {
			out = append(out, t.Name)
		}
	}
	return out
}

// containsToken reports whether name appears in text bounded by non
// identifier characters on both sides, so "widgets2" doesn't match table
// "widgets".
func containsToken(text, name string) bool {
	idx := 0
	for {
		i := strings.Index(text[idx:], name)
		if i < 0 {
			return false
		}
		pos := idx + i
		before := byte(0)
		if pos > 0 {
			before = text[pos-1]
		}
		after := byte(0)
		if pos+len(name) < len(text) {
			after = text[pos+len(name)]
		}
		if !isIdentByte(before) && !isIdentByte(after) {
			return true
		}
		idx = pos + len(name)
		if idx >= len(text) {
			return false
		}
	}
}

func isIdentByte(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
