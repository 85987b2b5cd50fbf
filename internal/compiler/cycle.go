package compiler

import (
	"slices"

	"github.com/roach88/ignis/internal/ir"
)

// findCycles returns every dependency cycle in the action set as a closed
// path of action ids, e.g. [M#a M#b M#a]. A DAG returns nil.
//
// The algorithm:
//  1. Use Tarjan's algorithm to find strongly connected components
//  2. Keep each SCC with size > 1, or a single action depending on itself
//  3. Walk each kept SCC from its smallest id to produce a readable path
//
// Nodes and edges are visited in sorted order so the result is stable.
func findCycles(actions map[string]*ir.Action) [][]string {
	graph := make(map[string][]string, len(actions))
	for id, a := range actions {
		graph[id] = a.Dependencies
	}

	var cycles [][]string
	for _, scc := range tarjanSCC(graph) {
		if len(scc) == 1 && !slices.Contains(graph[scc[0]], scc[0]) {
			continue
		}
		cycles = append(cycles, reconstructCyclePath(scc, graph))
	}
	slices.SortFunc(cycles, func(a, b []string) int {
		return slices.Compare(a, b)
	})
	return cycles
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
func tarjanSCC(graph map[string][]string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack and emit an SCC.
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// reconstructCyclePath returns the shortest closed path through a sorted
// SCC, starting and ending at its smallest member.
func reconstructCyclePath(scc []string, graph map[string][]string) []string {
	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[0]
	parent := map[string]string{}
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range graph[cur] {
			if !members[next] {
				continue
			}
			if next == start {
				path := []string{start}
				for n := cur; n != start; n = parent[n] {
					path = append(path, n)
				}
				slices.Reverse(path[1:])
				return append(path, start)
			}
			if !seen[next] {
				seen[next] = true
				parent[next] = cur
				queue = append(queue, next)
			}
		}
	}
	return append(slices.Clone(scc), start)
}
