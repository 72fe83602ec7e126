package quorum

import "github.com/sbdlabs/clustercore/pkg/types"

// Detect reports whether more than one node holds role=master with
// status=healthy, and returns those masters (in no particular order).
func Detect(nodes []*types.Node) (bool, []*types.Node) {
	var masters []*types.Node
	for _, n := range nodes {
		if n.Role == types.NodeRoleMaster && n.Status == types.NodeStatusHealthy {
			masters = append(masters, n)
		}
	}
	return len(masters) > 1, masters
}

// Resolve deterministically picks the legitimate master out of a
// split-brain candidate set: sort by (highest priority, earliest
// created_at) and return the winner. Callers demote every other
// candidate. Resolve does not mutate nodes or touch storage itself.
func Resolve(candidates []*types.Node) *types.Node {
	if len(candidates) == 0 {
		return nil
	}

	best := candidates[0]
	for _, n := range candidates[1:] {
		if isBetterMaster(n, best) {
			best = n
		}
	}
	return best
}

func isBetterMaster(a, b *types.Node) bool {
	if a.Capabilities.Priority != b.Capabilities.Priority {
		return a.Capabilities.Priority > b.Capabilities.Priority
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
