package depgraph

import "sort"

// edgeWeight assigns the hand-tuned costs the minimizer's longest-path
// search uses to decide which statements are safe to drop first: the
// cheaper an edge, the more willing the minimizer is to cut a statement on
// either end of it. Structural edges (Inner, StrictStart alone) are nearly
// free; edges carrying real data dependencies (WriteRead/WriteWrite) are
// the most expensive to lose.
func edgeWeight(labels LabelSet) int {
	innerOnly := labels.Has(Inner) && !labels.Has(StrictStart) && !hasDataLabel(labels)
	strictOnly := labels.Has(StrictStart) && !labels.Has(Inner) && !hasDataLabel(labels)
	structuralWithData := (labels.Has(Inner) || labels.Has(StrictStart)) && hasDataLabel(labels)
	writeLabel := labels.Has(WriteRead) || labels.Has(WriteWrite)

	switch {
	case innerOnly:
		return 1
	case strictOnly:
		return 10
	case structuralWithData:
		return 100
	case writeLabel:
		return 100000
	default:
		return 10000
	}
}

func hasDataLabel(labels LabelSet) bool {
	return labels.Has(WriteRead) || labels.Has(WriteWrite) || labels.Has(ReadWrite) ||
		labels.Has(VersionSet) || labels.Has(Overwrite)
}

// TopoOrder returns every statement index 0..NumStmts-1 in an order
// consistent with g.StmtEdges wherever that graph is acyclic. Where a
// cycle exists (possible once Instrumentation/Inner/Start edges combine
// with WR/WW derived from a data race), the offending statements are
// grouped and emitted together, in index order, rather than blocking
// the rest of the sort.
func TopoOrder(g *Graph) []int {
	remaining := map[int]bool{}
	for i := 0; i < g.NumStmts; i++ {
		remaining[i] = true
	}

	var order []int
	for len(remaining) > 0 {
		progressed := false
		zero := zeroInDegreeNodes(remaining, g.StmtEdges)
		if len(zero) > 0 {
			order = append(order, zero...)
			for _, n := range zero {
				delete(remaining, n)
			}
			progressed = true
		}
		if !progressed {
			group := instrumentationGroup(firstOf(remaining), g, remaining)
			order = append(order, group...)
			for _, n := range group {
				delete(remaining, n)
			}
		}
	}
	return order
}

func zeroInDegreeNodes(remaining map[int]bool, edges map[edgeKey]LabelSet) []int {
	var out []int
	for n := range remaining {
		deg := 0
		for k := range edges {
			if remaining[k.from] && remaining[k.to] && k.to == n {
				deg++
			}
		}
		if deg == 0 {
			out = append(out, n)
		}
	}
	return out
}

func firstOf(remaining map[int]bool) int {
	best := -1
	for n := range remaining {
		if best < 0 || n < best {
			best = n
		}
	}
	return best
}

// instrumentationGroup expands pick to every statement connected to it by
// an Instrumentation edge, so a write and its adjacent before/after-write
// reads are always kept (or dropped) together.
func instrumentationGroup(pick int, g *Graph, remaining map[int]bool) []int {
	group := map[int]bool{pick: true}
	changed := true
	for changed {
		changed = false
		for k, ls := range g.StmtEdges {
			if !ls.Has(Instrumentation) {
				continue
			}
			if group[k.from] && remaining[k.to] && !group[k.to] {
				group[k.to] = true
				changed = true
			}
			if group[k.to] && remaining[k.from] && !group[k.from] {
				group[k.from] = true
				changed = true
			}
		}
	}
	out := make([]int, 0, len(group))
	for n := range group {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// LongestPaths returns, for every statement index, the weight of the
// longest weighted path in g.StmtEdges ending at that index (0 for a
// source node). The minimizer drops leaves from the lowest-weight end of
// this ordering first, so structurally-free statements are trimmed before
// ones load-bearing to a real data dependency.
func LongestPaths(g *Graph) map[int]int {
	order := TopoOrder(g)
	pos := map[int]int{}
	for i, n := range order {
		pos[n] = i
	}

	incoming := map[int][]edgeKey{}
	for k := range g.StmtEdges {
		incoming[k.to] = append(incoming[k.to], k)
	}

	dist := map[int]int{}
	for _, n := range order {
		best := 0
		for _, k := range incoming[n] {
			if pos[k.from] >= pos[n] {
				continue // back edge from a cycle group; ignore to keep this a DAG relaxation
			}
			w := dist[k.from] + edgeWeight(g.StmtEdges[k])
			if w > best {
				best = w
			}
		}
		dist[n] = best
	}
	return dist
}

// MinimizationOrder ranks every statement index from most to least
// disposable: the candidate order a minimizer should try dropping
// statements in, cheapest longest-path weight first.
func MinimizationOrder(g *Graph) []int {
	dist := LongestPaths(g)
	order := make([]int, 0, g.NumStmts)
	for i := 0; i < g.NumStmts; i++ {
		order = append(order, i)
	}
	// simple insertion sort by ascending dist; statement counts in a single
	// test run are small enough that this need not be asymptotically fancy.
	for i := 1; i < len(order); i++ {
		j := i
		for j > 0 && dist[order[j-1]] > dist[order[j]] {
			order[j-1], order[j] = order[j], order[j-1]
			j--
		}
	}
	return order
}
