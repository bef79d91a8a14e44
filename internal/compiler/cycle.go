package compiler

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/actionbus/internal/ir"
)

// CycleWarning represents a potential runtime loop between actions.
//
// Loops are warnings, not errors, because they may be intentional:
//   - Polling with a retry budget
//   - Ring-buffered loops with allow_circular_call
//   - Loops broken by a non-repeatable member
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles performs static loop analysis on a workflow.
//
// It builds the graph of edges along which one completion requests
// another action: subscriptions and triggers (subject → action) and
// dispatch handlers (action → listeners of its event). Each strongly
// connected component with more than one node, or with a self-loop, is a
// potential loop.
//
// A loop whose members are all repeatable re-runs until an action
// repeats an (action, status) pair, which is a circular call at runtime
// unless circular calls are allowed; it is reported as "warning". A loop
// with a non-repeatable member stops after one pass and is reported as
// "info".
//
// A DAG (no cycles) returns an empty warning list.
func AnalyzeCycles(w *ir.Workflow) []CycleWarning {
	graph := buildRequestGraph(w)
	if len(graph) == 0 {
		return []CycleWarning{}
	}

	repeatable := make(map[string]bool, len(w.Actions))
	for _, a := range w.Actions {
		repeatable[a.ID] = a.Repeatable
	}

	warnings := []CycleWarning{}
	for _, scc := range tarjanSCC(graph) {
		if len(scc) == 1 && !hasSelfLoop(scc[0], graph) {
			continue
		}
		warning := cycleSCCToWarning(scc, graph)
		allRepeatable := true
		for _, id := range scc {
			allRepeatable = allRepeatable && repeatable[id]
		}
		if !allRepeatable || w.Config.AllowCircularCall {
			warning.Level = "info"
		}
		warnings = append(warnings, warning)
	}

	slices.SortFunc(warnings, func(a, b CycleWarning) int {
		return strings.Compare(a.Path[0], b.Path[0])
	})
	return warnings
}

// RequireCycles returns every cycle through require edges. A required
// cycle can never become ready, so these are errors. Self requirements
// are reported separately and skipped here.
func RequireCycles(w *ir.Workflow) [][]string {
	graph := make(dependencyGraph)
	for _, a := range w.Actions {
		graph.node(a.ID)
		for _, req := range a.Require {
			if req != a.ID {
				graph.edge(a.ID, req)
			}
		}
	}

	var cycles [][]string
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 {
			cycles = append(cycles, reconstructCyclePath(scc, graph))
		}
	}
	slices.SortFunc(cycles, func(a, b []string) int {
		return strings.Compare(a[0], b[0])
	})
	return cycles
}

// dependencyGraph maps action id → action ids it may request, sorted.
type dependencyGraph map[string][]string

func (g dependencyGraph) node(id string) {
	if _, ok := g[id]; !ok {
		g[id] = []string{}
	}
}

func (g dependencyGraph) edge(from, to string) {
	g.node(from)
	g.node(to)
	if i, found := slices.BinarySearch(g[from], to); !found {
		g[from] = slices.Insert(g[from], i, to)
	}
}

// buildRequestGraph constructs the request graph of a workflow.
func buildRequestGraph(w *ir.Workflow) dependencyGraph {
	graph := make(dependencyGraph)

	for _, s := range w.Subscriptions {
		graph.edge(s.Subject, s.Action)
	}
	for _, t := range w.Triggers {
		graph.edge(t.Subject, t.Action)
	}

	// Build event → listeners mapping
	listeners := make(map[string][]string)
	for _, a := range w.Actions {
		if a.Listen != "" {
			listeners[a.Listen] = append(listeners[a.Listen], a.ID)
		}
	}
	for _, a := range w.Actions {
		if a.Handler != "dispatch" {
			continue
		}
		for _, l := range listeners[a.Event] {
			graph.edge(a.ID, l)
		}
	}

	return graph
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	_, found := slices.BinarySearch(graph[node], node)
	return found
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Nodes are visited in sorted order so the result is deterministic.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph dependencyGraph) [][]string {
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
		// Set the depth index for v
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		// Consider successors of v
		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				// Successor w has not yet been visited; recurse on it
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				// Successor w is on stack and hence in the current SCC
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// If v is a root node, pop the stack and create an SCC
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

	for _, node := range slices.Sorted(maps.Keys(graph)) {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
//
// For self-loops, the path is [id, id].
// For multi-node cycles, the path shows a cycle traversal.
func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		id := scc[0]
		return CycleWarning{
			Path:    []string{id, id},
			Message: fmt.Sprintf("Self-requesting action detected: %s → %s", id, id),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Potential loop detected: %s", joinPath(path)),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: start at the smallest id in the SCC, follow edges to other
// SCC members, continue until we return to start node.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	// Build set of SCC members for fast lookup
	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := slices.Min(scc)
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	// Follow edges within SCC until we return to start
	for {
		visited[current] = true

		// Prefer closing the cycle, otherwise the first unvisited member
		var next string
		for _, neighbor := range graph[current] {
			if neighbor == start {
				next = start
				break
			}
			if sccSet[neighbor] && !visited[neighbor] && next == "" {
				next = neighbor
			}
		}

		if next == "" {
			// No more unvisited neighbors in SCC
			break
		}

		path = append(path, next)

		if next == start {
			// Completed the cycle
			break
		}

		current = next
	}

	return path
}

func joinPath(path []string) string {
	return strings.Join(path, " → ")
}
