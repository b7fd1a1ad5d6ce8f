// Package catalog holds the in-memory schema model consulted by the
// generator: types, tables, columns, operators, routines, aggregates, and
// window functions, plus the type-indexed lookup tables the generator needs
// to answer "what can I put here?" without scanning the whole schema.
package catalog

import "fmt"

// Kind enumerates the well-known and pseudo types a Catalog can hold.
// Pseudo types participate in Consistent's subsumption rules but never
// appear as the declared type of a real column.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindReal
	KindText
	KindInternal // forbidden as function argument/result in generated code
	KindArray    // forbidden likewise
	KindAnyArray
	KindAnyElement
	KindAnyEnum
	KindAnyRange
	KindRecord
	KindCString
	KindAny
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindReal:
		return "real"
	case KindText:
		return "text"
	case KindInternal:
		return "internal"
	case KindArray:
		return "array"
	case KindAnyArray:
		return "any-array"
	case KindAnyElement:
		return "any-element"
	case KindAnyEnum:
		return "any-enum"
	case KindAnyRange:
		return "any-range"
	case KindRecord:
		return "record"
	case KindCString:
		return "cstring"
	case KindAny:
		return "any"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// pseudo reports whether k is one of the polymorphic placeholder kinds
// rather than a concrete scalar type.
func (k Kind) pseudo() bool {
	switch k {
	case KindAnyArray, KindAnyElement, KindAnyEnum, KindAnyRange, KindRecord, KindCString, KindAny:
		return true
	default:
		return false
	}
}

// Type is a named SQL type. Two Types are Consistent when a value of one
// may be supplied where the other is expected.
type Type struct {
	Name string
	Kind Kind
	// Elem is the element type for an array-shaped concrete type; nil for
	// scalars. It lets Consistent decide whether a concrete array type
	// satisfies KindAnyArray.
	Elem *Type
	// EnumValues is non-empty for a concrete enum type and lets Consistent
	// decide whether it satisfies KindAnyEnum.
	EnumValues []string
}

// Consistent returns whether a value of type a may be supplied where a
// value of type b is expected. It is reflexive (Consistent(a, a) always
// holds) and symmetric on concrete types; pseudo-types on either side
// implement the structural subsumption rules in consistentWithPseudo.
func Consistent(a, b *Type) bool {
	if a == nil || b == nil {
		return false
	}
	if a.Name == b.Name {
		return true
	}
	if b.Kind.pseudo() {
		return consistentWithPseudo(a, b.Kind)
	}
	if a.Kind.pseudo() {
		return consistentWithPseudo(b, a.Kind)
	}
	return a.Kind == b.Kind
}

// consistentWithPseudo decides whether concrete satisfies the structural
// rule attached to pseudo.
func consistentWithPseudo(concrete *Type, pseudo Kind) bool {
	switch pseudo {
	case KindAny:
		return true
	case KindAnyElement:
		return concrete.Kind != KindArray && concrete.Kind != KindInternal
	case KindAnyArray:
		return concrete.Kind == KindArray && concrete.Elem != nil
	case KindAnyEnum:
		return len(concrete.EnumValues) > 0
	case KindAnyRange:
		return concrete.Kind == KindReal || concrete.Kind == KindInt
	case KindRecord:
		return false // records are never satisfied by a scalar
	case KindCString:
		return concrete.Kind == KindText
	default:
		return false
	}
}

// WellKnown returns the required base types every Catalog must register:
// bool, int, real, text, internal, array.
func WellKnown() []*Type {
	return []*Type{
		{Name: "bool", Kind: KindBool},
		{Name: "int", Kind: KindInt},
		{Name: "real", Kind: KindReal},
		{Name: "text", Kind: KindText},
		{Name: "internal", Kind: KindInternal},
		{Name: "array", Kind: KindArray},
	}
}

// Column is a single column of a Table: a name and its static type. Column
// names are unique within a table under case-insensitive comparison; the
// original case is retained in Name for emission.
type Column struct {
	Name string
	Type *Type
}

// Table is a base table or a view. Views have IsInsertable and
// IsBaseTable both false.
type Table struct {
	Name          string
	Schema        string
	IsInsertable  bool
	IsBaseTable   bool
	Columns       []*Column
	ConstraintIDs []string
}

// ColumnNamed returns the column with the given name (case-insensitive), or
// nil if the table has no such column.
func (t *Table) ColumnNamed(name string) *Column {
	for _, c := range t.Columns {
		if equalFold(c.Name, name) {
			return c
		}
	}
	return nil
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Operator is a binary, infix operator: symbol left right -> result.
type Operator struct {
	Symbol     string
	LeftType   *Type
	RightType  *Type
	ResultType *Type
}

// RoutineKind distinguishes which pool a Routine lives in, which in turn
// determines the syntactic context the generator may use it in.
type RoutineKind int

const (
	RoutineFunction RoutineKind = iota
	RoutineAggregate
	RoutineWindow
)

// Routine represents a scalar function, aggregate, or window function.
type Routine struct {
	Schema     string
	SpecificID string
	ResultType *Type
	Name       string
	ArgTypes   []*Type
	Kind       RoutineKind
}

// Parameterless reports whether the routine takes no arguments.
func (r *Routine) Parameterless() bool { return len(r.ArgTypes) == 0 }
