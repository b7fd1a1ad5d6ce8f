package depgraph

import "testing"

func TestReduceEmptiesADAG(t *testing.T) {
	nodes := []int{1, 2, 3, 4}
	edges := map[edgeKey]bool{
		{1, 2}: true,
		{2, 3}: true,
		{3, 4}: true,
	}
	if got := Reduce(nodes, edges); len(got) != 0 {
		t.Fatalf("Reduce(DAG) = %v, want empty", got)
	}
	if HasCycle(nodes, edges) {
		t.Fatalf("HasCycle(DAG) = true, want false")
	}
}

func TestReduceLeavesACycle(t *testing.T) {
	nodes := []int{1, 2, 3}
	edges := map[edgeKey]bool{
		{1, 2}: true,
		{2, 3}: true,
		{3, 1}: true,
	}
	got := Reduce(nodes, edges)
	if len(got) != 3 {
		t.Fatalf("Reduce(cycle) = %v, want all 3 members", got)
	}
	if !HasCycle(nodes, edges) {
		t.Fatalf("HasCycle(cycle) = false, want true")
	}
}

func TestReduceStripsDanglingTailsOfACycle(t *testing.T) {
	// 1 -> 2 -> 3 -> 1 is a cycle; 0 -> 1 and 3 -> 4 dangle off it and
	// must be stripped, leaving exactly the cycle.
	nodes := []int{0, 1, 2, 3, 4}
	edges := map[edgeKey]bool{
		{0, 1}: true,
		{1, 2}: true,
		{2, 3}: true,
		{3, 1}: true,
		{3, 4}: true,
	}
	got := Reduce(nodes, edges)
	want := map[int]bool{1: true, 2: true, 3: true}
	if len(got) != len(want) {
		t.Fatalf("Reduce = %v, want members %v", got, want)
	}
	for _, n := range got {
		if !want[n] {
			t.Fatalf("Reduce returned unexpected member %d", n)
		}
	}
}
