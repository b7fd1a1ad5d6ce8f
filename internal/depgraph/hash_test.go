package depgraph

import "testing"

func TestRowHashStableUnderColumnOrder(t *testing.T) {
	a := Row{"wkey": int64(1), "v": int64(2)}
	b := Row{"v": int64(2), "wkey": int64(1)}
	if RowHash(a) != RowHash(b) {
		t.Fatalf("hash depends on map iteration order")
	}
}

func TestRowHashDiffersOnValue(t *testing.T) {
	a := Row{"wkey": int64(1), "v": int64(2)}
	b := Row{"wkey": int64(1), "v": int64(3)}
	if RowHash(a) == RowHash(b) {
		t.Fatalf("distinct rows hashed equal")
	}
}

func TestIntColumnAcceptsNumericShapes(t *testing.T) {
	row := Row{"a": int64(1), "b": int(2), "c": int32(3), "d": float64(4), "e": "nope"}
	for col, want := range map[string]int64{"a": 1, "b": 2, "c": 3, "d": 4} {
		got, ok := intColumn(row, col)
		if !ok || got != want {
			t.Fatalf("intColumn(%s) = %v, %v; want %v, true", col, got, ok, want)
		}
	}
	if _, ok := intColumn(row, "e"); ok {
		t.Fatalf("intColumn accepted a non-numeric value")
	}
	if _, ok := intColumn(row, "missing"); ok {
		t.Fatalf("intColumn accepted a missing column")
	}
}
