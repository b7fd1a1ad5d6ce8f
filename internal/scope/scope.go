// Package scope holds the lexical environment threaded through production
// construction: the relations and columns a statement can currently see,
// a per-statement unique-id counter, and a handle back to the catalog.
package scope

import (
	"fmt"
	"sync/atomic"

	"github.com/txnfuzz/txnfuzz/internal/catalog"
)

// Relation is a visible table-shaped thing: either a base table/view
// (Table != nil) or an aliased sub-query result (Columns set directly).
type Relation struct {
	Alias   string
	Table   *catalog.Table // nil for a sub-query relation
	Columns []*catalog.Column
}

// ColumnRef is a visible column binding, qualified by its relation's alias
// (relation.column).
type ColumnRef struct {
	Relation string
	Column   *catalog.Column
}

// Scope is the per-statement environment. Scopes form a tree via Fork for
// sub-queries, CTEs, and join conditions, each level seeing its parent's
// bindings plus its own.
type Scope struct {
	parent  *Scope
	cat     *catalog.Catalog
	counter *atomic.Uint64

	relations []*Relation
	columns   []*ColumnRef
}

// New returns a root Scope over cat with every base table and view
// visible.
func New(cat *catalog.Catalog) *Scope {
	s := &Scope{cat: cat, counter: &atomic.Uint64{}}
	for _, t := range cat.Tables() {
		s.addTable(t)
	}
	return s
}

func (s *Scope) addTable(t *catalog.Table) {
	rel := &Relation{Alias: t.Name, Table: t, Columns: t.Columns}
	s.relations = append(s.relations, rel)
	for _, c := range t.Columns {
		s.columns = append(s.columns, &ColumnRef{Relation: t.Name, Column: c})
	}
}

// Catalog returns the catalog handle this scope was built over.
func (s *Scope) Catalog() *catalog.Catalog { return s.cat }

// Fork returns a child scope that sees the parent's bindings plus whatever
// is added to it afterward. Used for sub-queries, CTEs, and join
// conditions that must see both sides.
func (s *Scope) Fork() *Scope {
	return &Scope{parent: s, cat: s.cat, counter: s.counter}
}

// AddRelation makes rel visible in this scope (and, transitively, any
// scope forked from it afterward).
func (s *Scope) AddRelation(rel *Relation) {
	s.relations = append(s.relations, rel)
	for _, c := range rel.Columns {
		s.columns = append(s.columns, &ColumnRef{Relation: rel.Alias, Column: c})
	}
}

// Relations returns every relation visible in this scope, including
// inherited ones.
func (s *Scope) Relations() []*Relation {
	var out []*Relation
	for sc := s; sc != nil; sc = sc.parent {
		out = append(out, sc.relations...)
	}
	return out
}

// Columns returns every column binding visible in this scope, including
// inherited ones.
func (s *Scope) Columns() []*ColumnRef {
	var out []*ColumnRef
	for sc := s; sc != nil; sc = sc.parent {
		out = append(out, sc.columns...)
	}
	return out
}

// WithoutRelation returns a derived scope identical to s except that the
// named relation is no longer visible. Used by delete/update/insert to
// remove the target table from the visible relations of their predicate
// sub-expressions, so reading the target via the same alias isn't
// generated accidentally.
func (s *Scope) WithoutRelation(alias string) *Scope {
	clone := &Scope{cat: s.cat, counter: s.counter}
	for _, r := range s.Relations() {
		if r.Alias != alias {
			clone.AddRelation(r)
		}
	}
	return clone
}

// NextID mints a unique alias of the given kind, e.g. NextID("ref") ->
// "ref_3", NextID("subq") -> "subq_1".
func (s *Scope) NextID(kind string) string {
	n := s.counter.Add(1)
	return fmt.Sprintf("%s_%d", kind, n)
}

// ColumnsOfType returns every visible column binding whose static type
// matches typeName.
func (s *Scope) ColumnsOfType(typeName string) []*ColumnRef {
	var out []*ColumnRef
	for _, c := range s.Columns() {
		if c.Column.Type.Name == typeName {
			out = append(out, c)
		}
	}
	return out
}
