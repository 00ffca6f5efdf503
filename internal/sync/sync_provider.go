package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

var (
	ErrMissingStrategy = errors.New("no resource strategy for role")
	ErrStructural      = errors.New("structural anomaly")
)

// Provider connects one side of the sync to its store.
type Provider interface {
	// FetchTree refreshes the previous snapshot of this side from the live
	// store and returns the updated tree. It never touches the other side.
	FetchTree(ctx context.Context, prev *SyncNode) (*SyncNode, error)

	// ActionDownstream runs on the source side of an action and exports the
	// node's content into action.Content.
	ActionDownstream(ctx context.Context, action *SyncAction) error

	// ActionUpstream runs on the target side of an action. It creates,
	// updates or deletes the entity and refreshes the node's metadata for
	// this side.
	ActionUpstream(ctx context.Context, action *SyncAction) error
}

// ContentMapping links a role to the node that contains entities of that
// role on the remote side. It is derived once per run.
type ContentMapping map[string]*SyncNode

// Container returns the container node for role
func (c ContentMapping) Container(role string) (*SyncNode, error) {
	node, ok := c[role]
	if !ok || node == nil || node.RemoteMeta == nil {
		return nil, fmt.Errorf("%w: no container for role %q", ErrStructural, role)
	}
	return node, nil
}

// ResourceStrategy creates and updates remote entities of one role.
type ResourceStrategy interface {
	Create(ctx context.Context, node *SyncNode, content string, mapping ContentMapping) (*RemoteMeta, error)
	Update(ctx context.Context, node *SyncNode, content string, mapping ContentMapping) (*RemoteMeta, error)
}

// StrategyRegistry maps roles to their resource strategies.
type StrategyRegistry struct {
	strategies map[string]ResourceStrategy
}

func NewStrategyRegistry() *StrategyRegistry {
	return &StrategyRegistry{strategies: make(map[string]ResourceStrategy)}
}

// Register sets the strategy for role, replacing any previous one
func (r *StrategyRegistry) Register(role string, strategy ResourceStrategy) {
	r.strategies[role] = strategy
}

// Get returns the strategy for role
func (r *StrategyRegistry) Get(role string) (ResourceStrategy, error) {
	s, ok := r.strategies[role]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrMissingStrategy, role)
	}
	return s, nil
}

// Validate checks that every role has a strategy
func (r *StrategyRegistry) Validate(roles []string) error {
	var missing []string
	for _, role := range roles {
		if _, ok := r.strategies[role]; !ok {
			missing = append(missing, role)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("%w: %v", ErrMissingStrategy, missing)
	}
	return nil
}
