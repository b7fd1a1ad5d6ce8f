package instrument

import (
	"fmt"
	"strings"

	"github.com/txnfuzz/txnfuzz/internal/catalog"
	"github.com/txnfuzz/txnfuzz/internal/grammar"
)

// Stmt is one entry of the instrumented queue: a single observation or
// user statement, tagged with the transaction it belongs to, its role, and
// (for anything that touches one base table) that table's name.
type Stmt struct {
	Text   string
	Tid    int
	Role   Role
	Target string // base table affected, "" for non-table statements
}

// Instrument rewrites a planned statement sequence into the ordered
// micro-sequence of observation statements. The textual form of each
// planned statement is produced once via grammar.Emit; table-name
// discovery for version-set reads is a textual scan, while the write-path
// rewrite uses the already-parsed structured Node for precision (the
// instrumentor needs the predicate text and, where derivable, the written
// row's wkey value).
func Instrument(cat *catalog.Catalog, stmts []*grammar.PlannedStmt) ([]*Stmt, error) {
	var out []*Stmt
	for _, p := range stmts {
		if p == nil || p.Stmt == nil {
			continue
		}
		text := grammar.Emit(p.Stmt)
		switch p.Family {
		case grammar.StmtInsert:
			ins, ok := p.Stmt.(*grammar.InsertStmt)
			if !ok {
				return nil, fmt.Errorf("instrument: planned insert has unexpected node type %T", p.Stmt)
			}
			out = append(out, instrumentInsert(cat, p.Tid, text, ins)...)
		case grammar.StmtUpdate:
			upd, ok := p.Stmt.(*grammar.UpdateStmt)
			if !ok {
				return nil, fmt.Errorf("instrument: planned update has unexpected node type %T", p.Stmt)
			}
			out = append(out, instrumentUpdate(cat, p.Tid, text, upd.Table, upd.Where)...)
		case grammar.StmtDelete:
			del, ok := p.Stmt.(*grammar.DeleteStmt)
			if !ok {
				return nil, fmt.Errorf("instrument: planned delete has unexpected node type %T", p.Stmt)
			}
			out = append(out, instrumentDelete(cat, p.Tid, text, del.Table, del.Where)...)
		case grammar.StmtUpsert:
			up, ok := p.Stmt.(*grammar.UpsertStmt)
			if !ok {
				return nil, fmt.Errorf("instrument: planned upsert has unexpected node type %T", p.Stmt)
			}
			out = append(out, instrumentUpsert(cat, p.Tid, text, up)...)
		case grammar.StmtMerge:
			m, ok := p.Stmt.(*grammar.MergeStmt)
			if !ok {
				return nil, fmt.Errorf("instrument: planned merge has unexpected node type %T", p.Stmt)
			}
			// MERGE can touch an unbounded set of rows selected by its ON
			// clause rather than one wkey, so it isn't decomposed into the
			// before/after-read shape the other writes get; it is still
			// tagged as a write against its target table so depgraph's
			// version-set/overwrite rules see it.
			out = append(out, &Stmt{Text: text, Tid: p.Tid, Role: UpdateWrite, Target: m.Target.Name})
		case grammar.StmtSchema:
			// begin/commit/rollback and DDL pass through unrewritten: both
			// are structural statements the dependency rules derive no
			// row-level edges from.
			out = append(out, &Stmt{Text: text, Tid: p.Tid, Role: Init})
		default:
			out = append(out, instrumentRead(cat, p.Tid, text)...)
		}
	}
	return out, nil
}

func selectAll(table, whereText string) string {
	if whereText == "" {
		return "SELECT * FROM " + table
	}
	return "SELECT * FROM " + table + " WHERE " + whereText
}

func instrumentInsert(cat *catalog.Catalog, tid int, text string, ins *grammar.InsertStmt) []*Stmt {
	var out []*Stmt
	for _, t := range referencedTables(cat, text, ins.Table) {
		out = append(out, &Stmt{Text: "SELECT * FROM " + t, Tid: tid, Role: VersionSetRead, Target: t})
	}
	out = append(out, &Stmt{Text: text, Tid: tid, Role: InsertWrite, Target: ins.Table})

	wkey, ok := insertedWkeyLiteral(ins)
	if !ok {
		// Best-effort: without a literal wkey value we can't pin the
		// after-read to the new row; re-read the whole table instead of
		// dropping the observation.
		out = append(out, &Stmt{Text: "SELECT * FROM " + ins.Table, Tid: tid, Role: AfterWriteRead, Target: ins.Table})
		return out
	}
	out = append(out, &Stmt{
		Text:   fmt.Sprintf("SELECT * FROM %s WHERE wkey = %s", ins.Table, wkey),
		Tid:    tid,
		Role:   AfterWriteRead,
		Target: ins.Table,
	})
	return out
}

func instrumentUpdate(cat *catalog.Catalog, tid int, text string, table string, where grammar.BoolExpr) []*Stmt {
	var out []*Stmt
	wt := whereText(where)
	for _, t := range referencedTables(cat, wt, table) {
		out = append(out, &Stmt{Text: "SELECT * FROM " + t, Tid: tid, Role: VersionSetRead, Target: t})
	}
	out = append(out, &Stmt{Text: selectAll(table, wt), Tid: tid, Role: BeforeWriteRead, Target: table})
	out = append(out, &Stmt{Text: text, Tid: tid, Role: UpdateWrite, Target: table})

	if wkey, ok := wkeyLiteral(where); ok {
		out = append(out, &Stmt{
			Text:   fmt.Sprintf("SELECT * FROM %s WHERE wkey = %s", table, wkey),
			Tid:    tid, Role: AfterWriteRead, Target: table,
		})
	} else {
		out = append(out, &Stmt{Text: selectAll(table, wt), Tid: tid, Role: AfterWriteRead, Target: table})
	}
	return out
}

func instrumentDelete(cat *catalog.Catalog, tid int, text string, table string, where grammar.BoolExpr) []*Stmt {
	var out []*Stmt
	wt := whereText(where)
	for _, t := range referencedTables(cat, wt, table) {
		out = append(out, &Stmt{Text: "SELECT * FROM " + t, Tid: tid, Role: VersionSetRead, Target: t})
	}
	out = append(out, &Stmt{Text: selectAll(table, wt), Tid: tid, Role: BeforeWriteRead, Target: table})
	out = append(out, &Stmt{Text: text, Tid: tid, Role: DeleteWrite, Target: table})
	return out
}

func instrumentUpsert(cat *catalog.Catalog, tid int, text string, up *grammar.UpsertStmt) []*Stmt {
	var out []*Stmt
	for _, t := range referencedTables(cat, text, up.Table) {
		out = append(out, &Stmt{Text: "SELECT * FROM " + t, Tid: tid, Role: VersionSetRead, Target: t})
	}
	wkey, ok := upsertWkeyLiteral(up)
	var wt string
	if ok {
		wt = "wkey = " + wkey
	}
	out = append(out, &Stmt{Text: selectAll(up.Table, wt), Tid: tid, Role: BeforeWriteRead, Target: up.Table})
	out = append(out, &Stmt{Text: text, Tid: tid, Role: UpdateWrite, Target: up.Table})
	out = append(out, &Stmt{Text: selectAll(up.Table, wt), Tid: tid, Role: AfterWriteRead, Target: up.Table})
	return out
}

func instrumentRead(cat *catalog.Catalog, tid int, text string) []*Stmt {
	var out []*Stmt
	for _, t := range referencedTables(cat, text, "") {
		out = append(out, &Stmt{Text: "SELECT * FROM " + t, Tid: tid, Role: VersionSetRead, Target: t})
	}
	out = append(out, &Stmt{Text: text, Tid: tid, Role: SelectRead})
	return out
}

func whereText(where grammar.BoolExpr) string {
	if where == nil {
		return ""
	}
	var b strings.Builder
	where.Emit(&b)
	return b.String()
}

// wkeyLiteral walks a (possibly AND-conjoined) predicate looking for a
// `wkey = <const>` equality, in either operand order, and returns the
// literal text of the constant side.
func wkeyLiteral(where grammar.BoolExpr) (string, bool) {
	switch e := where.(type) {
	case *grammar.ComparisonOp:
		if e.Symbol != "=" {
			return "", false
		}
		if lit, ok := wkeyConstOf(e.Left, e.Right); ok {
			return lit, true
		}
		return wkeyConstOf(e.Right, e.Left)
	case *grammar.BoolTerm:
		if !e.IsAnd {
			return "", false
		}
		if lit, ok := wkeyLiteral(e.Left); ok {
			return lit, true
		}
		return wkeyLiteral(e.Right)
	default:
		return "", false
	}
}

func wkeyConstOf(colSide, constSide grammar.ValueExpr) (string, bool) {
	col, ok := colSide.(*grammar.ColumnReference)
	if !ok || col.Column != "wkey" {
		return "", false
	}
	c, ok := constSide.(*grammar.ConstExpr)
	if !ok {
		return "", false
	}
	return c.Literal, true
}

func insertedWkeyLiteral(ins *grammar.InsertStmt) (string, bool) {
	for i, col := range ins.Columns {
		if col != "wkey" {
			continue
		}
		if i >= len(ins.Values) {
			return "", false
		}
		c, ok := ins.Values[i].(*grammar.ConstExpr)
		if !ok {
			return "", false
		}
		return c.Literal, true
	}
	return "", false
}

func upsertWkeyLiteral(up *grammar.UpsertStmt) (string, bool) {
	for i, col := range up.Columns {
		if col != "wkey" {
			continue
		}
		if i >= len(up.Values) {
			return "", false
		}
		c, ok := up.Values[i].(*grammar.ConstExpr)
		if !ok {
			return "", false
		}
		return c.Literal, true
	}
	return "", false
}
