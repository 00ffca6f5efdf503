package sync

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leafConflict(local, remote int) *SyncAction {
	node := bothSides(NodeTypeNote, "lecture", local, remote, 0)
	return NewConflictAction(node,
		NewFetchAction(TargetRemote, node, at(local)),
		NewFetchAction(TargetLocal, node, at(remote)),
	)
}

func TestResolver_PassThrough(t *testing.T) {
	fetch := NewFetchAction(TargetRemote, bothSides(NodeTypeNote, "lecture", 2, 1, 0), at(2))
	r := NewSyncConflictResolver(FixedDecider(DecisionAbort))

	out, err := r.Resolve(context.Background(), []*SyncAction{fetch})
	require.NoError(t, err)
	assert.Equal(t, []*SyncAction{fetch}, out)
}

func TestResolver_PreferLocalKeepsRemoteTarget(t *testing.T) {
	conflict := leafConflict(2, 3)
	r := NewSyncConflictResolver(FixedDecider(DecisionLocal))

	out, err := r.ResolveConflict(context.Background(), conflict)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, TargetRemote, out[0].Target)
	assert.Equal(t, ActionFetch, out[0].Type)
}

func TestResolver_PreferRemoteKeepsLocalTarget(t *testing.T) {
	out, err := NewSyncConflictResolver(FixedDecider(DecisionRemote)).
		ResolveConflict(context.Background(), leafConflict(2, 3))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, TargetLocal, out[0].Target)
}

func TestResolver_SkipAndAbort(t *testing.T) {
	out, err := NewSyncConflictResolver(FixedDecider(DecisionSkip)).
		ResolveConflict(context.Background(), leafConflict(2, 3))
	require.NoError(t, err)
	assert.Empty(t, out)

	ok := NewFetchAction(TargetRemote, bothSides(NodeTypeNote, "lecture", 2, 1, 0), at(2))
	resolved, err := NewSyncConflictResolver(FixedDecider(DecisionAbort)).
		Resolve(context.Background(), []*SyncAction{ok, leafConflict(2, 3)})
	assert.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, []*SyncAction{ok}, resolved)
}

func TestResolver_GroupConflictAutoResolves(t *testing.T) {
	node := bothSides(NodeTypeGroup, "course", 2, 3, 0)
	conflict := fixedPlanner().PlanNode(node)[0]
	require.Equal(t, ActionConflict, conflict.Type)

	asked := false
	decider := DeciderFunc(func(context.Context, *SyncAction) (Decision, error) {
		asked = true
		return DecisionSkip, nil
	})

	out, err := NewSyncConflictResolver(decider).ResolveConflict(context.Background(), conflict)
	require.NoError(t, err)
	assert.False(t, asked)
	assert.Len(t, out, 2)
}

func TestNewestDecider(t *testing.T) {
	d := NewestDecider()

	got, err := d.Decide(context.Background(), leafConflict(5, 3))
	require.NoError(t, err)
	assert.Equal(t, DecisionLocal, got)

	got, err = d.Decide(context.Background(), leafConflict(3, 5))
	require.NoError(t, err)
	assert.Equal(t, DecisionRemote, got)

	got, err = d.Decide(context.Background(), leafConflict(4, 4))
	require.NoError(t, err)
	assert.Equal(t, DecisionLocal, got)
}

func TestNewPolicyDecider(t *testing.T) {
	for _, policy := range []string{PolicyLocal, PolicyRemote, PolicySkip, PolicyAbort, PolicyNewest} {
		d, err := NewPolicyDecider(policy)
		require.NoError(t, err, policy)
		assert.NotNil(t, d)
	}

	_, err := NewPolicyDecider(PolicyPrompt)
	assert.ErrorIs(t, err, ErrUnknownPolicy)
	_, err = NewPolicyDecider("coinflip")
	assert.ErrorIs(t, err, ErrUnknownPolicy)
}

func TestPromptDecider(t *testing.T) {
	tests := []struct {
		input string
		want  Decision
	}{
		{"l\n", DecisionLocal},
		{"R\n", DecisionRemote},
		{" s \n", DecisionSkip},
		{"a", DecisionAbort},
		{"x\nmaybe\nl\n", DecisionLocal},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			p := NewPromptDecider(strings.NewReader(tt.input), &out)

			got, err := p.Decide(context.Background(), leafConflict(2, 3))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "[l]ocal")
		})
	}
}

func TestPromptDecider_EOF(t *testing.T) {
	p := NewPromptDecider(strings.NewReader("x"), &bytes.Buffer{})

	_, err := p.Decide(context.Background(), leafConflict(2, 3))
	assert.Error(t, err)
}

func TestPromptDecider_DrivesResolver(t *testing.T) {
	var out bytes.Buffer
	r := NewSyncConflictResolver(NewPromptDecider(strings.NewReader("l\n"), &out))

	resolved, err := r.Resolve(context.Background(), []*SyncAction{leafConflict(2, 3)})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, TargetRemote, resolved[0].Target)
	assert.Contains(t, out.String(), "CONFLICT")
}

func TestResolver_DeciderError(t *testing.T) {
	boom := errors.New("boom")
	r := NewSyncConflictResolver(DeciderFunc(func(context.Context, *SyncAction) (Decision, error) {
		return "", boom
	}))

	_, err := r.ResolveConflict(context.Background(), leafConflict(2, 3))
	assert.ErrorIs(t, err, boom)
}
