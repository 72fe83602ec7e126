package registry

import (
	"github.com/sbdlabs/clustercore/pkg/types"
)

// ValidateOwner checks every known node's locally recorded OwnerUserID
// against expectedOwner and reports a consensus verdict. Consensus holds
// only if every node agrees; a single disagreeing or unreachable node
// breaks it. In a single-process topology every node shares this
// Registry's Store, so "querying" a node's local owner record means
// reading its persisted Node.OwnerUserID rather than a network call.
func (r *Registry) ValidateOwner(expectedOwner string) (*types.OwnerValidationResult, error) {
	nodes, err := r.store.ListNodes()
	if err != nil {
		return nil, err
	}

	result := &types.OwnerValidationResult{
		OwnerUserID: expectedOwner,
		Consensus:   true,
		PerNode:     make(map[string]bool, len(nodes)),
	}

	for _, n := range nodes {
		agrees := n.OwnerUserID == expectedOwner
		result.PerNode[n.ID] = agrees
		if !agrees {
			result.Consensus = false
		}
	}

	return result, nil
}
