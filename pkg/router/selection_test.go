package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sbdlabs/clustercore/pkg/types"
)

func node(id string, priority int) *types.Node {
	return &types.Node{ID: id, Capabilities: types.Capabilities{Priority: priority}}
}

func TestSelect_RoundRobin_CyclesCandidates(t *testing.T) {
	s := NewSelector()
	candidates := []*types.Node{node("a", 1), node("b", 1), node("c", 1)}

	seen := map[string]int{}
	for i := 0; i < 6; i++ {
		picked := s.Select(candidates, AlgorithmRoundRobin, "", false)
		seen[picked.ID]++
	}
	assert.Equal(t, 2, seen["a"])
	assert.Equal(t, 2, seen["b"])
	assert.Equal(t, 2, seen["c"])
}

func TestSelect_LeastConnections_PrefersIdleNode(t *testing.T) {
	s := NewSelector()
	candidates := []*types.Node{node("a", 1), node("b", 1)}

	s.IncrementConnection("a")
	s.IncrementConnection("a")
	s.IncrementConnection("b")

	picked := s.Select(candidates, AlgorithmLeastConnections, "", false)
	assert.Equal(t, "b", picked.ID)
}

func TestSelect_WeightedRoundRobin_FavorsHigherPriority(t *testing.T) {
	s := NewSelector()
	candidates := []*types.Node{node("heavy", 9), node("light", 1)}

	counts := map[string]int{}
	for i := 0; i < 10; i++ {
		picked := s.Select(candidates, AlgorithmWeightedRoundRobin, "", false)
		counts[picked.ID]++
	}
	assert.Greater(t, counts["heavy"], counts["light"])
}

func TestSelect_IPHash_IsStableForSameClient(t *testing.T) {
	s := NewSelector()
	candidates := []*types.Node{node("a", 1), node("b", 1), node("c", 1)}

	first := s.Select(candidates, AlgorithmIPHash, "client-42", false)
	second := s.Select(candidates, AlgorithmIPHash, "client-42", false)
	assert.Equal(t, first.ID, second.ID)
}

func TestSelect_LeastResponseTime_PrefersFasterNode(t *testing.T) {
	s := NewSelector()
	candidates := []*types.Node{node("slow", 1), node("fast", 1)}

	s.RecordRequest("slow", 0.9)
	s.RecordRequest("fast", 0.05)

	picked := s.Select(candidates, AlgorithmLeastResponseTime, "", false)
	assert.Equal(t, "fast", picked.ID)
}

func TestSelect_StickySession_PinsClientToFirstNode(t *testing.T) {
	s := NewSelector()
	candidates := []*types.Node{node("a", 1), node("b", 1), node("c", 1)}

	first := s.Select(candidates, AlgorithmRoundRobin, "client-1", true)
	for i := 0; i < 5; i++ {
		again := s.Select(candidates, AlgorithmRoundRobin, "client-1", true)
		assert.Equal(t, first.ID, again.ID)
	}
}

func TestForget_RemovesStatsAndStickyMapping(t *testing.T) {
	s := NewSelector()
	candidates := []*types.Node{node("a", 1)}
	s.Select(candidates, AlgorithmRoundRobin, "client-1", true)
	s.IncrementConnection("a")

	s.Forget("a")

	stats := s.GetNodeStats("a")
	assert.Equal(t, 0, stats.ActiveConnections)
}
