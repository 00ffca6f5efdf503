package sync

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	ErrAborted       = errors.New("sync aborted by operator")
	ErrUnknownPolicy = errors.New("unknown conflict policy")
)

// Decision is the outcome of a leaf conflict
type Decision string

const (
	DecisionLocal  Decision = "local"
	DecisionRemote Decision = "remote"
	DecisionSkip   Decision = "skip"
	DecisionAbort  Decision = "abort"
)

// Conflict policies accepted by NewPolicyDecider
const (
	PolicyPrompt = "prompt"
	PolicyLocal  = "local"
	PolicyRemote = "remote"
	PolicySkip   = "skip"
	PolicyAbort  = "abort"
	PolicyNewest = "newest"
)

// Decider settles a conflict on a leaf content node
type Decider interface {
	Decide(ctx context.Context, conflict *SyncAction) (Decision, error)
}

// DeciderFunc adapts a function to the Decider interface
type DeciderFunc func(ctx context.Context, conflict *SyncAction) (Decision, error)

func (f DeciderFunc) Decide(ctx context.Context, conflict *SyncAction) (Decision, error) {
	return f(ctx, conflict)
}

// FixedDecider always returns the same decision
func FixedDecider(d Decision) Decider {
	return DeciderFunc(func(context.Context, *SyncAction) (Decision, error) {
		return d, nil
	})
}

// NewestDecider prefers the side whose change is more recent, local on a tie
func NewestDecider() Decider {
	return DeciderFunc(func(_ context.Context, conflict *SyncAction) (Decision, error) {
		toRemote := conflict.ConflictFor(TargetRemote)
		toLocal := conflict.ConflictFor(TargetLocal)
		if toRemote == nil || toLocal == nil {
			return DecisionSkip, nil
		}
		if toLocal.ChangedAt.After(toRemote.ChangedAt) {
			return DecisionRemote, nil
		}
		return DecisionLocal, nil
	})
}

// NewPolicyDecider returns the non-interactive decider for policy
func NewPolicyDecider(policy string) (Decider, error) {
	switch policy {
	case PolicyLocal:
		return FixedDecider(DecisionLocal), nil
	case PolicyRemote:
		return FixedDecider(DecisionRemote), nil
	case PolicySkip:
		return FixedDecider(DecisionSkip), nil
	case PolicyAbort:
		return FixedDecider(DecisionAbort), nil
	case PolicyNewest:
		return NewestDecider(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, policy)
}

var (
	promptTitle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	promptHint  = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

// PromptDecider asks an operator on a terminal
type PromptDecider struct {
	in  *bufio.Reader
	out io.Writer
}

func NewPromptDecider(in io.Reader, out io.Writer) *PromptDecider {
	return &PromptDecider{in: bufio.NewReader(in), out: out}
}

func (p *PromptDecider) Decide(ctx context.Context, conflict *SyncAction) (Decision, error) {
	fmt.Fprintf(p.out, "%s\n%s\n\n", promptTitle.Render("Conflict occurred:"), conflict)

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		fmt.Fprint(p.out, "Prefer [l]ocal changes, [r]emote changes, [s]kip or [a]bort sync: ")
		line, err := p.in.ReadString('\n')
		if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
			return "", fmt.Errorf("read answer: %w", err)
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "l":
			return DecisionLocal, nil
		case "r":
			return DecisionRemote, nil
		case "s":
			return DecisionSkip, nil
		case "a":
			return DecisionAbort, nil
		}

		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read answer: %w", io.ErrUnexpectedEOF)
		}
		fmt.Fprintln(p.out, promptHint.Render("please answer with one of l, r, s, a"))
	}
}

// SyncConflictResolver reduces CONFLICT actions to concrete actions.
type SyncConflictResolver struct {
	decider Decider
}

func NewSyncConflictResolver(decider Decider) *SyncConflictResolver {
	return &SyncConflictResolver{decider: decider}
}

// Resolve returns the plan with every conflict replaced by its resolution.
// On ErrAborted the actions resolved so far are returned with the error.
func (r *SyncConflictResolver) Resolve(ctx context.Context, actions []*SyncAction) ([]*SyncAction, error) {
	resolved := make([]*SyncAction, 0, len(actions))
	for _, action := range actions {
		out, err := r.ResolveConflict(ctx, action)
		if err != nil {
			return resolved, err
		}
		resolved = append(resolved, out...)
	}
	return resolved, nil
}

// ResolveConflict resolves a single action
func (r *SyncConflictResolver) ResolveConflict(ctx context.Context, action *SyncAction) ([]*SyncAction, error) {
	if action.Type != ActionConflict {
		return []*SyncAction{action}, nil
	}

	if !action.Node.IsLeaf() {
		slog.Info("conflict auto resolved", "reason", "structural", "node", action.Node)
		return action.Conflicts, nil
	}

	decision, err := r.decider.Decide(ctx, action)
	if err != nil {
		return nil, fmt.Errorf("resolve conflict %s: %w", action.Node, err)
	}
	slog.Info("conflict resolved", "node", action.Node, "decision", decision)

	switch decision {
	case DecisionLocal:
		return filterTarget(action.Conflicts, TargetRemote), nil
	case DecisionRemote:
		return filterTarget(action.Conflicts, TargetLocal), nil
	case DecisionSkip:
		return nil, nil
	case DecisionAbort:
		return nil, ErrAborted
	}
	return nil, fmt.Errorf("resolve conflict %s: unknown decision %q", action.Node, decision)
}

func filterTarget(actions []*SyncAction, target Target) []*SyncAction {
	var out []*SyncAction
	for _, a := range actions {
		if a.Target == target {
			out = append(out, a)
		}
	}
	return out
}
