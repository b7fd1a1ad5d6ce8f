package grammar

import (
	"strings"

	"github.com/txnfuzz/txnfuzz/internal/catalog"
	"github.com/txnfuzz/txnfuzz/internal/scope"
)

// NamedQuery is one `name AS (query)` entry of a WITH clause.
type NamedQuery struct {
	Name  string
	Query Query
}

// WithQuery is `WITH n1 AS (q1), n2 AS (q2) <main>`, where Main sees every
// named query as an ordinary table reference via the scope it was built
// under (newWithQuery registers the relations before building Main).
type WithQuery struct {
	Names []*NamedQuery
	Main  Query
}

func (w *WithQuery) query() {}

func (w *WithQuery) Emit(sb *strings.Builder) {
	sb.WriteString("WITH ")
	for i, n := range w.Names {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(n.Name)
		sb.WriteString(" AS (")
		n.Query.Emit(sb)
		sb.WriteByte(')')
	}
	sb.WriteByte(' ')
	w.Main.Emit(sb)
}

// projection delegates to the main query so a WITH-wrapped query can still
// seed a nested scope when used as a table-subquery's relation.
func (w *WithQuery) projection() []*catalog.Column {
	if p, ok := w.Main.(projector); ok {
		return p.projection()
	}
	return nil
}

// newWithQuery builds one or more named sub-queries, registers each as an
// ordinary relation of the surrounding scope, and builds the main query
// under that extended scope.
func newWithQuery(ctx *Context) (*WithQuery, error) {
	n := ctx.Source.Dx(2)
	extended := ctx.Scope.Fork()

	w := &WithQuery{}
	for i := 0; i < n; i++ {
		sub, err := NewQuery(ctx.WithScope(ctx.Scope.Fork()))
		if err != nil {
			return nil, err
		}
		name := extended.NextID("cte")
		p, ok := sub.(projector)
		if !ok {
			continue
		}
		extended.AddRelation(&scope.Relation{Alias: name, Columns: p.projection()})
		w.Names = append(w.Names, &NamedQuery{Name: name, Query: sub})
	}
	if len(w.Names) == 0 {
		return nil, wrapTryAgain("with-query: no named query survived construction")
	}

	main, err := NewQuery(ctx.WithScope(extended))
	if err != nil {
		return nil, err
	}
	w.Main = main
	return w, nil
}

// NewQueryWithCTEs is the entry point used by statement-level productions
// that want a chance at a WITH-prefixed query instead of a bare query-spec.
func NewQueryWithCTEs(ctx *Context) (Query, error) {
	if ctx.Source.Dx(4) == 1 {
		if w, err := newWithQuery(ctx); err == nil {
			return w, nil
		}
	}
	return NewQuery(ctx)
}
