package quorum

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sbdlabs/clustercore/pkg/types"
)

func master(id string, priority int, createdAt time.Time) *types.Node {
	return &types.Node{
		ID:           id,
		Role:         types.NodeRoleMaster,
		Status:       types.NodeStatusHealthy,
		Capabilities: types.Capabilities{Priority: priority},
		CreatedAt:    createdAt,
	}
}

func TestDetect_NoSplitBrain(t *testing.T) {
	nodes := []*types.Node{
		master("a", 100, time.Now()),
		{ID: "b", Role: types.NodeRoleReplica, Status: types.NodeStatusHealthy},
	}
	split, masters := Detect(nodes)
	assert.False(t, split)
	assert.Len(t, masters, 1)
}

func TestDetect_SplitBrain(t *testing.T) {
	now := time.Now()
	nodes := []*types.Node{
		master("a", 100, now),
		master("b", 100, now.Add(-time.Hour)),
	}
	split, masters := Detect(nodes)
	assert.True(t, split)
	assert.Len(t, masters, 2)
}

func TestResolve_PrefersHigherPriority(t *testing.T) {
	now := time.Now()
	candidates := []*types.Node{
		master("a", 50, now),
		master("b", 100, now),
	}
	winner := Resolve(candidates)
	assert.Equal(t, "b", winner.ID)
}

func TestResolve_TieBreaksOnCreatedAt(t *testing.T) {
	now := time.Now()
	candidates := []*types.Node{
		master("a", 100, now),
		master("b", 100, now.Add(-time.Hour)),
	}
	winner := Resolve(candidates)
	assert.Equal(t, "b", winner.ID)
}

func TestResolve_Empty(t *testing.T) {
	assert.Nil(t, Resolve(nil))
}
