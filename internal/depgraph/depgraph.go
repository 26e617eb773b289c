// Package depgraph validates task-dependency edge additions against an
// existing predecessor→successor graph. It holds no state: callers hand it a
// consistent snapshot of the stored edges per call, and nothing here survives
// the call. The graph is an adjacency map of stable string ids; nodes are
// never linked directly.
package depgraph

import "fmt"

// Edges maps a predecessor task id to the ids of tasks that depend on it.
type Edges map[string][]string

// CycleError rejects a proposed dependency edge that would close a loop.
type CycleError struct {
	Predecessor string
	Candidate   string
}

func (e CycleError) Error() string {
	return fmt.Sprintf("Adding dependency from %s to %s creates a cycle", e.Predecessor, e.Candidate)
}

// Validate checks whether making candidateID depend on each of predecessorIDs
// keeps the graph acyclic. A proposed predecessor already reachable from
// candidateID (over successor edges) would close a loop and is rejected.
// Self-dependencies are rejected without traversal.
func Validate(candidateID string, predecessorIDs []string, edges Edges) error {
	for _, pred := range predecessorIDs {
		if pred == candidateID {
			return CycleError{Predecessor: pred, Candidate: candidateID}
		}
	}
	if len(predecessorIDs) == 0 {
		return nil
	}
	for _, pred := range predecessorIDs {
		if hasPath(edges, candidateID, pred) {
			return CycleError{Predecessor: pred, Candidate: candidateID}
		}
	}
	return nil
}

func hasPath(edges Edges, source, target string) bool {
	stack := []string{source}
	visited := map[string]bool{}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node == target {
			return true
		}
		if visited[node] {
			continue
		}
		visited[node] = true
		stack = append(stack, edges[node]...)
	}
	return false
}
