package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/openmined/notesync/internal/utils"
)

const (
	DefaultWatchInterval = time.Minute
	saveStateTimeout     = 30 * time.Second
	metadataDirName      = ".notesync"
)

var (
	ErrSyncAlreadyRunning = errors.New("sync already running")
	ErrInteractiveWatch   = errors.New("watch mode needs a non-interactive conflict policy")
)

// Locker guards a workspace against concurrent engines
type Locker interface {
	Lock() error
	Unlock() error
}

// WriteObserver is implemented by providers that write into a watched
// directory. The engine uses it to keep its own writes out of watch events.
type WriteObserver interface {
	ObserveWrites(fn func(path string))
}

// EngineConfig wires an Engine
type EngineConfig struct {
	RootDir    string
	RemoteRoot string
	Hierarchy  []string
	Local      Provider
	Remote     Provider
	Store      Store
	Decider    Decider
	Strategies *StrategyRegistry
	Locker     Locker
	Workers    int
	FailFast   bool
	Clock      func() time.Time
}

// Validate reports configuration errors that would make every run fail
func (c *EngineConfig) Validate() error {
	if len(c.Hierarchy) == 0 {
		return errors.New("role hierarchy is empty")
	}
	if c.Local == nil || c.Remote == nil {
		return errors.New("both providers are required")
	}
	if c.Store == nil {
		return errors.New("state store is required")
	}
	if c.Decider == nil {
		return errors.New("conflict decider is required")
	}
	if c.Strategies != nil {
		if err := c.Strategies.Validate(c.Hierarchy); err != nil {
			return err
		}
	}
	return nil
}

// RunOptions controls a single run
type RunOptions struct {
	// DryRun stops after planning. Nothing is resolved, executed or saved.
	DryRun bool
}

// RunResult summarizes a run
type RunResult struct {
	Merged   *SyncNode
	Planned  []*SyncAction
	Resolved []*SyncAction
	Sync     *SyncResult
	Aborted  bool
	Duration time.Duration
}

// Failed returns the number of failed actions
func (r *RunResult) Failed() int {
	if r.Sync == nil {
		return 0
	}
	return len(r.Sync.Failed)
}

// Engine runs the full reconciliation of one workspace.
type Engine struct {
	cfg      EngineConfig
	merger   *SyncMerger
	planner  *SyncPlanner
	resolver *SyncConflictResolver
	syncer   *Syncer
	muRun    sync.Mutex
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}

	var plannerOpts []PlannerOption
	if cfg.Clock != nil {
		plannerOpts = append(plannerOpts, WithClock(cfg.Clock))
	}

	return &Engine{
		cfg:      cfg,
		merger:   NewSyncMerger(),
		planner:  NewSyncPlanner(plannerOpts...),
		resolver: NewSyncConflictResolver(cfg.Decider),
		syncer:   NewSyncer(cfg.Local, cfg.Remote, WithWorkers(cfg.Workers), WithFailFast(cfg.FailFast)),
	}, nil
}

// Run executes one reconciliation. Per-node failures are reported in the
// result, the returned error is reserved for failures of the run itself.
// An operator abort returns ErrAborted after the state has been saved.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if !e.muRun.TryLock() {
		return nil, ErrSyncAlreadyRunning
	}
	defer e.muRun.Unlock()

	if e.cfg.Locker != nil {
		if err := e.cfg.Locker.Lock(); err != nil {
			return nil, err
		}
		defer func() {
			if err := e.cfg.Locker.Unlock(); err != nil {
				slog.Warn("workspace unlock", "error", err)
			}
		}()
	}

	start := time.Now()
	result := &RunResult{}

	data, err := e.loadState(ctx)
	if err != nil {
		return nil, err
	}

	localTree, err := e.cfg.Local.FetchTree(ctx, data.LocalTree)
	if err != nil {
		return nil, fmt.Errorf("fetch local tree: %w", err)
	}
	remoteTree, err := e.cfg.Remote.FetchTree(ctx, data.RemoteTree)
	if err != nil {
		return nil, fmt.Errorf("fetch remote tree: %w", err)
	}

	result.Merged = e.merger.Merge(e.cfg.Hierarchy, localTree, remoteTree)
	result.Planned = e.planner.Plan(result.Merged)
	slog.Info("sync plan", "actions", len(result.Planned))

	if opts.DryRun {
		result.Duration = time.Since(start)
		return result, nil
	}

	resolved, err := e.resolver.Resolve(ctx, result.Planned)
	if errors.Is(err, ErrAborted) {
		// nothing is executed, fresh metadata is kept so pending changes stay pending
		result.Aborted = true
		if err := e.saveState(ctx, data, result.Merged); err != nil {
			return result, err
		}
		result.Duration = time.Since(start)
		return result, ErrAborted
	} else if err != nil {
		return nil, err
	}
	result.Resolved = resolved

	result.Sync = e.syncer.Sync(ctx, resolved)

	if err := e.saveState(ctx, data, result.Merged); err != nil {
		return result, err
	}

	result.Duration = time.Since(start)
	slog.Info("sync done",
		"completed", len(result.Sync.Completed),
		"failed", len(result.Sync.Failed),
		"skipped", len(result.Sync.Skipped),
		"took", result.Duration,
	)
	return result, nil
}

// saveState persists the stamps of merged. It outlives a cancelled run so
// completed actions are not transferred again.
func (e *Engine) saveState(ctx context.Context, data *SyncData, merged *SyncNode) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveStateTimeout)
	defer cancel()

	data.Apply(merged)
	if err := e.cfg.Store.Save(ctx, data); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

func (e *Engine) loadState(ctx context.Context) (*SyncData, error) {
	data, err := e.cfg.Store.Load(ctx)
	if errors.Is(err, ErrNoState) {
		slog.Info("sync state created", "root", e.cfg.RootDir)
		return NewSyncData(e.cfg.RootDir, e.cfg.RemoteRoot), nil
	} else if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	if data.RemoteRoot != e.cfg.RemoteRoot {
		return nil, fmt.Errorf("state belongs to remote root %q, configured %q", data.RemoteRoot, e.cfg.RemoteRoot)
	}
	data.RootDir = e.cfg.RootDir
	return data, nil
}

// WatchOptions controls Watch
type WatchOptions struct {
	Interval      time.Duration
	SettleTimeout time.Duration
	// OnRun is called after every run, mostly for terminal output
	OnRun func(*RunResult, error)
}

// Watch runs once, then again whenever the local tree settles after a change
// and on every interval tick. It returns when ctx is done.
func (e *Engine) Watch(ctx context.Context, opts WatchOptions) error {
	if _, ok := e.cfg.Decider.(*PromptDecider); ok {
		return ErrInteractiveWatch
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultWatchInterval
	}

	watcher := NewFileWatcher(e.cfg.RootDir)
	if opts.SettleTimeout > 0 {
		watcher.SetSettleTimeout(opts.SettleTimeout)
	}
	metaDir := filepath.Join(e.cfg.RootDir, metadataDirName)
	watcher.FilterPaths(func(path string) bool {
		return path == metaDir || strings.HasPrefix(path, metaDir+string(filepath.Separator)) || utils.IsTempFile(path)
	})
	if obs, ok := e.cfg.Local.(WriteObserver); ok {
		obs.ObserveWrites(watcher.Ignore)
	}

	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer watcher.Stop()

	run := func(reason string) {
		slog.Info("watch run", "reason", reason)
		res, err := e.Run(ctx, RunOptions{})
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("watch run", "reason", reason, "error", err)
		}
		if opts.OnRun != nil {
			opts.OnRun(res, err)
		}
	}

	run("startup")

	// timer instead of ticker so a slow run does not queue ticks
	timer := time.NewTimer(opts.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case paths, ok := <-watcher.Batches():
			if !ok {
				return nil
			}
			slog.Debug("watch change", "paths", len(paths))
			run("change")
		case <-timer.C:
			run("interval")
			timer.Reset(opts.Interval)
		}
	}
}
