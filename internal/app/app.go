package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/openmined/notesync/internal/config"
	"github.com/openmined/notesync/internal/docsdk"
	"github.com/openmined/notesync/internal/profile"
	"github.com/openmined/notesync/internal/provider/local"
	"github.com/openmined/notesync/internal/provider/remote"
	"github.com/openmined/notesync/internal/sync"
	"github.com/openmined/notesync/internal/workspace"
)

// Options carries the process level dependencies of an App
type Options struct {
	// In and Out are used by the interactive conflict prompt
	In  io.Reader
	Out io.Writer
	// Decider overrides the one derived from the conflict policy
	Decider sync.Decider
	// ClientOptions are appended to the document service client options
	ClientOptions []docsdk.Option
}

// App is a fully wired sync of one workspace against one remote root.
type App struct {
	Config    *config.Config
	Workspace *workspace.Workspace
	Profile   *profile.Profile
	Client    *docsdk.Client
	Local     *local.Provider
	Remote    *remote.Provider
	Store     sync.Store
	Engine    *sync.Engine
}

// New builds every component from cfg. The caller owns the result and must Close it.
func New(cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.RequireRemote(); err != nil {
		return nil, err
	}

	ws, err := workspace.NewWorkspace(cfg.RootDir)
	if err != nil {
		return nil, err
	}
	if err := ws.Setup(); err != nil {
		return nil, err
	}

	prof, err := profile.Resolve(cfg.Profile)
	if err != nil {
		return nil, err
	}

	client, err := NewClient(cfg, opts.ClientOptions...)
	if err != nil {
		return nil, err
	}

	localMapper, err := prof.LocalMapper()
	if err != nil {
		return nil, err
	}
	localProvider, err := local.New(ws.Root, localMapper)
	if err != nil {
		return nil, err
	}

	remoteProvider, err := remote.FromProfile(client.Pages, cfg.RemoteRoot, prof)
	if err != nil {
		return nil, err
	}

	decider := opts.Decider
	if decider == nil {
		decider, err = newDecider(cfg.ConflictPolicy, opts.In, opts.Out)
		if err != nil {
			return nil, err
		}
	}

	store, err := newStore(cfg.StateBackend, ws.StatePath(cfg.StateBackend))
	if err != nil {
		return nil, err
	}

	engine, err := sync.NewEngine(sync.EngineConfig{
		RootDir:    ws.Root,
		RemoteRoot: cfg.RemoteRoot,
		Hierarchy:  prof.Hierarchy,
		Local:      localProvider,
		Remote:     remoteProvider,
		Store:      store,
		Decider:    decider,
		Strategies: remoteProvider.Strategies(),
		Locker:     ws,
		Workers:    cfg.Workers,
		FailFast:   cfg.FailFast,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	slog.Debug("app ready", "config", *cfg, "profile", prof.Name)

	return &App{
		Config:    cfg,
		Workspace: ws,
		Profile:   prof,
		Client:    client,
		Local:     localProvider,
		Remote:    remoteProvider,
		Store:     store,
		Engine:    engine,
	}, nil
}

// NewClient returns a document service client for cfg
func NewClient(cfg *config.Config, extra ...docsdk.Option) (*docsdk.Client, error) {
	opts := []docsdk.Option{docsdk.WithToken(cfg.Token)}
	if cfg.RateLimit > 0 {
		opts = append(opts, docsdk.WithRateLimit(cfg.RateLimit))
	}
	return docsdk.New(cfg.RemoteURL, append(opts, extra...)...)
}

// EnsureContainers creates the collections the profile stores its roles in
func (a *App) EnsureContainers(ctx context.Context) ([]string, error) {
	return a.Remote.EnsureContainers(ctx)
}

// Run performs a single reconciliation
func (a *App) Run(ctx context.Context, dryRun bool) (*sync.RunResult, error) {
	return a.Engine.Run(ctx, sync.RunOptions{DryRun: dryRun})
}

// Watch keeps syncing until ctx is done
func (a *App) Watch(ctx context.Context, onRun func(*sync.RunResult, error)) error {
	return a.Engine.Watch(ctx, sync.WatchOptions{
		Interval: a.Config.WatchInterval,
		OnRun:    onRun,
	})
}

// Tree fetches and merges both sides without applying anything
func (a *App) Tree(ctx context.Context) (*sync.SyncNode, error) {
	res, err := a.Engine.Run(ctx, sync.RunOptions{DryRun: true})
	if err != nil {
		return nil, err
	}
	return res.Merged, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

func newDecider(policy string, in io.Reader, out io.Writer) (sync.Decider, error) {
	if policy != sync.PolicyPrompt {
		return sync.NewPolicyDecider(policy)
	}
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return sync.NewPromptDecider(in, out), nil
}

func newStore(backend, path string) (sync.Store, error) {
	switch backend {
	case config.BackendYAML:
		return sync.NewYAMLStore(path), nil
	case config.BackendSQLite:
		store, err := sync.NewSQLiteStore(path)
		if err != nil {
			return nil, fmt.Errorf("open state %s: %w", path, err)
		}
		return store, nil
	}
	return nil, errors.New("unknown state backend " + backend)
}
