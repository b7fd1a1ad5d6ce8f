package catalog

import "testing"

func mustFinalize(t *testing.T, c *Catalog) {
	t.Helper()
	if err := c.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

func TestConsistentReflexive(t *testing.T) {
	c := New()
	for _, typ := range c.Types() {
		if !Consistent(typ, typ) {
			t.Errorf("Consistent(%s, %s) = false, want true", typ.Name, typ.Name)
		}
	}
}

func TestConsistentAnyArray(t *testing.T) {
	arrayOfInt := &Type{Name: "int[]", Kind: KindArray, Elem: &Type{Name: "int", Kind: KindInt}}
	anyArray := &Type{Name: "any-array", Kind: KindAnyArray}
	text := &Type{Name: "text", Kind: KindText}

	if !Consistent(arrayOfInt, anyArray) {
		t.Error("expected int[] to be consistent with any-array")
	}
	if Consistent(text, anyArray) {
		t.Error("expected text to be inconsistent with any-array")
	}
}

func TestConsistentAnyElement(t *testing.T) {
	anyElement := &Type{Name: "any-element", Kind: KindAnyElement}
	internal := &Type{Name: "internal", Kind: KindInternal}
	arr := &Type{Name: "array", Kind: KindArray}
	intType := &Type{Name: "int", Kind: KindInt}

	if Consistent(internal, anyElement) {
		t.Error("internal must never be consistent with any-element")
	}
	if Consistent(arr, anyElement) {
		t.Error("array must never be consistent with any-element")
	}
	if !Consistent(intType, anyElement) {
		t.Error("int should be consistent with any-element")
	}
}

func TestCatalogClosureRejectsDanglingType(t *testing.T) {
	c := New()
	ghost := &Type{Name: "ghost", Kind: KindText}
	c.RegisterTable(&Table{
		Name:        "t",
		IsBaseTable: true,
		Columns:     []*Column{{Name: "wkey", Type: ghost}},
	})
	// ghost was never registered with RegisterType.
	if err := c.Finalize(); err == nil {
		t.Fatal("expected Finalize to fail on unresolved column type")
	}
}

func TestIndicesAfterFinalize(t *testing.T) {
	c := New()
	intType := c.TypeNamed("int")
	textType := c.TypeNamed("text")

	c.RegisterTable(&Table{
		Name:        "widgets",
		IsBaseTable: true,
		Columns: []*Column{
			{Name: "wkey", Type: intType},
			{Name: "label", Type: textType},
		},
	})
	c.RegisterOperator(&Operator{Symbol: "+", LeftType: intType, RightType: intType, ResultType: intType})
	c.RegisterRoutine(&Routine{Name: "now", ResultType: intType, Kind: RoutineFunction})
	c.RegisterRoutine(&Routine{Name: "count", ResultType: intType, Kind: RoutineAggregate})
	c.RegisterRoutine(&Routine{Name: "row_number", ResultType: intType, Kind: RoutineWindow})

	mustFinalize(t, c)

	if got := c.TablesWithColumnOfType("int"); len(got) != 1 || got[0].Name != "widgets" {
		t.Errorf("TablesWithColumnOfType(int) = %v, want [widgets]", got)
	}
	if len(c.OperatorsReturning("int")) != 1 {
		t.Error("expected one operator returning int")
	}
	if len(c.RoutinesReturning("int")) != 1 {
		t.Error("expected one routine returning int")
	}
	if len(c.AggregatesReturning("int")) != 1 {
		t.Error("expected one aggregate returning int")
	}
	if len(c.WindowsReturning("int")) != 1 {
		t.Error("expected one window function returning int")
	}
	if len(c.ParameterlessRoutinesReturning("int")) != 1 {
		t.Error("expected now() in the parameterless index")
	}
}

func TestColumnNamedCaseInsensitive(t *testing.T) {
	tbl := &Table{Name: "t", Columns: []*Column{{Name: "WKey"}}}
	if tbl.ColumnNamed("wkey") == nil {
		t.Error("expected case-insensitive column lookup to find WKey")
	}
	if tbl.ColumnNamed("missing") != nil {
		t.Error("expected lookup of missing column to return nil")
	}
}
