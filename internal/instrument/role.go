// Package instrument rewrites a planned statement sequence into an
// ordered micro-sequence of observation statements, so that the effect of
// every write and every read is observable at the row level by
// internal/depgraph.
package instrument

// Role tags one statement in the instrumented queue. The numeric value is
// the on-disk encoding used by a reproducer's usage.txt: one decimal
// integer per line from the closed set 0..7.
type Role int

const (
	Init Role = iota
	SelectRead
	UpdateWrite
	InsertWrite
	DeleteWrite
	BeforeWriteRead
	AfterWriteRead
	VersionSetRead
)

func (r Role) String() string {
	switch r {
	case Init:
		return "init"
	case SelectRead:
		return "select-read"
	case UpdateWrite:
		return "update-write"
	case InsertWrite:
		return "insert-write"
	case DeleteWrite:
		return "delete-write"
	case BeforeWriteRead:
		return "before-write-read"
	case AfterWriteRead:
		return "after-write-read"
	case VersionSetRead:
		return "version-set-read"
	default:
		return "unknown"
	}
}

// IsInstrumentation reports whether r is one of the three read roles
// injected around a write by Instrument, as opposed to a statement the
// generator produced directly.
func (r Role) IsInstrumentation() bool {
	switch r {
	case BeforeWriteRead, AfterWriteRead, VersionSetRead:
		return true
	default:
		return false
	}
}

// IsWrite reports whether r is one of the three write roles.
func (r Role) IsWrite() bool {
	switch r {
	case UpdateWrite, InsertWrite, DeleteWrite:
		return true
	default:
		return false
	}
}

// ParseRole maps the 0..7 on-disk encoding back to a Role, for the
// reproducer's usage.txt reader.
func ParseRole(n int) (Role, bool) {
	if n < int(Init) || n > int(VersionSetRead) {
		return Init, false
	}
	return Role(n), true
}
