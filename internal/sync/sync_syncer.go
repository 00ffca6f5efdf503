package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ActionError is a failed action together with its cause
type ActionError struct {
	Action *SyncAction
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s %s %s: %v", e.Action.Type, e.Action.Target, e.Action.Node, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// SyncResult collects the outcome of executing a plan
type SyncResult struct {
	Completed []*SyncAction
	Failed    []*ActionError
	Skipped   []*SyncAction
	Duration  time.Duration

	mu sync.Mutex
}

func (r *SyncResult) complete(a *SyncAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Completed = append(r.Completed, a)
}

func (r *SyncResult) fail(a *SyncAction, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failed = append(r.Failed, &ActionError{Action: a, Err: err})
}

func (r *SyncResult) skip(actions ...*SyncAction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Skipped = append(r.Skipped, actions...)
}

// Err joins all action failures, nil if every action succeeded
func (r *SyncResult) Err() error {
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// SyncerOption configures a Syncer
type SyncerOption func(*Syncer)

// WithWorkers executes independent subtrees in parallel
func WithWorkers(n int) SyncerOption {
	return func(s *Syncer) {
		s.workers = n
	}
}

// WithFailFast stops executing after the first failed action
func WithFailFast(failFast bool) SyncerOption {
	return func(s *Syncer) {
		s.failFast = failFast
	}
}

// Syncer executes resolved actions against the local and remote providers.
type Syncer struct {
	providers map[Target]Provider
	workers   int
	failFast  bool
}

func NewSyncer(local, remote Provider, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		providers: map[Target]Provider{
			TargetLocal:  local,
			TargetRemote: remote,
		},
		workers: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync executes the actions. A failure only affects the failed action's node.
// Cancelling ctx stops between actions; remaining actions are reported as skipped.
func (s *Syncer) Sync(ctx context.Context, actions []*SyncAction) *SyncResult {
	start := time.Now()
	result := &SyncResult{}

	if s.workers <= 1 {
		_ = s.runSerial(ctx, actions, result)
		result.Duration = time.Since(start)
		return result
	}

	partitions := partitionActions(actions)
	slog.Debug("syncer partitions", "count", len(partitions), "workers", s.workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, part := range partitions {
		part := part
		g.Go(func() error {
			return s.runSerial(gctx, part, result)
		})
	}
	_ = g.Wait()

	result.Duration = time.Since(start)
	return result
}

func (s *Syncer) runSerial(ctx context.Context, actions []*SyncAction, result *SyncResult) error {
	for i, action := range actions {
		if err := ctx.Err(); err != nil {
			result.skip(actions[i:]...)
			return err
		}

		err := s.Execute(ctx, action)
		switch {
		case err == nil:
			result.complete(action)
		case errors.Is(err, ErrStructural):
			slog.Warn("sync action skipped", "action", action, "error", err)
			result.skip(action)
		default:
			slog.Error("sync action failed", "action", action, "error", err)
			result.fail(action, err)
			if s.failFast {
				result.skip(actions[i+1:]...)
				return err
			}
		}
	}
	return nil
}

// Execute runs a single action: export on the source side, apply on the
// target side, then stamp the node as synced.
func (s *Syncer) Execute(ctx context.Context, action *SyncAction) error {
	if err := validateAction(action); err != nil {
		return err
	}

	source := s.providers[action.Source()]
	target := s.providers[action.Target]
	if source == nil || target == nil {
		return fmt.Errorf("no provider for %s", action.Target)
	}

	slog.Info("sync action", "type", action.Type, "target", action.Target, "node", action.Node)

	if err := source.ActionDownstream(ctx, action); err != nil {
		return fmt.Errorf("downstream %s: %w", action.Source(), err)
	}
	if err := target.ActionUpstream(ctx, action); err != nil {
		return fmt.Errorf("upstream %s: %w", action.Target, err)
	}

	stamp := action.ChangedAt
	if t := targetUpdatedAt(action); t.After(stamp) {
		stamp = t
	}
	action.Node.MarkSynced(stamp)
	return nil
}

func validateAction(action *SyncAction) error {
	node := action.Node
	switch action.Type {
	case ActionConflict:
		return fmt.Errorf("%w: unresolved conflict on %s", ErrStructural, node)
	case ActionFetch:
		if action.Target == TargetRemote && (node.LocalMeta == nil || node.LocalMeta.Deleted) {
			return fmt.Errorf("%w: %s has no local data to push", ErrStructural, node)
		}
		if action.Target == TargetLocal && (node.RemoteMeta == nil || node.RemoteMeta.Deleted) {
			return fmt.Errorf("%w: %s has no remote data to pull", ErrStructural, node)
		}
	}
	return nil
}

// targetUpdatedAt is the target side's own timestamp after the write. Stamping
// at least this late keeps the write from being seen as a new change.
func targetUpdatedAt(action *SyncAction) time.Time {
	node := action.Node
	if action.Target == TargetLocal && node.LocalMeta != nil {
		return node.LocalMeta.UpdatedAt
	}
	if action.Target == TargetRemote && node.RemoteMeta != nil {
		return node.RemoteMeta.UpdatedAt
	}
	return time.Time{}
}

// partitionActions groups actions by the top level subtree they touch,
// preserving list order inside each group.
func partitionActions(actions []*SyncAction) [][]*SyncAction {
	index := make(map[string]int)
	var parts [][]*SyncAction
	for _, a := range actions {
		key := TopAncestor(a.Node).ID
		i, ok := index[key]
		if !ok {
			i = len(parts)
			index[key] = i
			parts = append(parts, nil)
		}
		parts[i] = append(parts[i], a)
	}
	return parts
}
