package depgraph_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifeline/internal/depgraph"
)

// chain: a <- b <- c (b depends on a, c depends on b), stored as
// predecessor -> successors.
func chain() depgraph.Edges {
	return depgraph.Edges{
		"a": {"b"},
		"b": {"c"},
	}
}

func TestChainRejectsClosingEdge(t *testing.T) {
	err := depgraph.Validate("a", []string{"c"}, chain())
	require.Error(t, err)
	var ce depgraph.CycleError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "c", ce.Predecessor)
	assert.Equal(t, "a", ce.Candidate)
	assert.Equal(t, "Adding dependency from c to a creates a cycle", err.Error())
}

func TestRetrySucceedsAfterBreakingChain(t *testing.T) {
	// Drop b's dependency on a; a -> c no longer has a path back.
	edges := depgraph.Edges{"b": {"c"}}
	assert.NoError(t, depgraph.Validate("a", []string{"c"}, edges))
}

func TestSelfDependencyRejectedWithoutTraversal(t *testing.T) {
	err := depgraph.Validate("a", []string{"a"}, nil)
	require.Error(t, err)
	assert.Equal(t, "Adding dependency from a to a creates a cycle", err.Error())
}

func TestDirectTwoNodeCycle(t *testing.T) {
	edges := depgraph.Edges{"x": {"y"}}
	assert.Error(t, depgraph.Validate("x", []string{"y"}, edges))
	assert.NoError(t, depgraph.Validate("y", []string{"z"}, edges))
}

func TestAcyclicAdditionsAccepted(t *testing.T) {
	assert.NoError(t, depgraph.Validate("c", []string{"a"}, chain()))
	assert.NoError(t, depgraph.Validate("d", []string{"a", "b", "c"}, chain()))
	assert.NoError(t, depgraph.Validate("a", nil, chain()))
}

func TestDiamondIsNotACycle(t *testing.T) {
	edges := depgraph.Edges{
		"root": {"left", "right"},
		"left": {"sink"},
	}
	assert.NoError(t, depgraph.Validate("sink", []string{"right"}, edges))
}
