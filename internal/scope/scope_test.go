package scope

import (
	"testing"

	"github.com/txnfuzz/txnfuzz/internal/catalog"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c := catalog.New()
	intType := c.TypeNamed("int")
	c.RegisterTable(&catalog.Table{
		Name:        "widgets",
		IsBaseTable: true,
		Columns: []*catalog.Column{
			{Name: "wkey", Type: intType},
			{Name: "write_op_id", Type: intType},
		},
	})
	if err := c.Finalize(); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewFillsVisibleTables(t *testing.T) {
	s := New(testCatalog(t))
	rels := s.Relations()
	if len(rels) != 1 || rels[0].Alias != "widgets" {
		t.Fatalf("Relations() = %v, want [widgets]", rels)
	}
	if len(s.Columns()) != 2 {
		t.Fatalf("Columns() = %d, want 2", len(s.Columns()))
	}
}

func TestForkInheritsBindings(t *testing.T) {
	s := New(testCatalog(t))
	child := s.Fork()
	if len(child.Relations()) != 1 {
		t.Fatal("forked scope should inherit parent's relations")
	}
	child.AddRelation(&Relation{Alias: "subq_1", Columns: nil})
	if len(child.Relations()) != 2 {
		t.Fatal("forked scope should see its own additions too")
	}
	if len(s.Relations()) != 1 {
		t.Fatal("parent scope must not see the child's additions")
	}
}

func TestWithoutRelationHidesTarget(t *testing.T) {
	s := New(testCatalog(t))
	filtered := s.WithoutRelation("widgets")
	if len(filtered.Relations()) != 0 {
		t.Fatal("expected widgets to be hidden")
	}
	if len(s.Relations()) != 1 {
		t.Fatal("original scope must be unaffected")
	}
}

func TestNextIDMonotonicAndSharedAcrossForks(t *testing.T) {
	s := New(testCatalog(t))
	child := s.Fork()
	first := s.NextID("ref")
	second := child.NextID("ref")
	if first == second {
		t.Fatalf("expected distinct ids, got %s twice", first)
	}
}

func TestColumnsOfType(t *testing.T) {
	s := New(testCatalog(t))
	cols := s.ColumnsOfType("int")
	if len(cols) != 2 {
		t.Fatalf("ColumnsOfType(int) = %d, want 2", len(cols))
	}
}
