// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package branch

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/forkchat/internal/model"
)

// =============================================================================
// HELPERS
// =============================================================================

func msg(id string, role model.Role) *model.Message {
	return &model.Message{ID: id, Role: role, Content: "content of " + id}
}

func conversation(msgs ...*model.Message) *model.Conversation {
	conv := model.NewConversation()
	for _, m := range msgs {
		conv.AddMessage(m)
	}
	return conv
}

func ids(msgs []*model.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func liveSuffix(t *testing.T, conv *model.Conversation, anchor string) []*model.Message {
	t.Helper()
	suffix, ok := conv.Suffix(anchor)
	require.True(t, ok, "anchor %s not live", anchor)
	return suffix
}

// =============================================================================
// ANCHOR RESOLUTION TESTS
// =============================================================================

func TestResolveAnchor(t *testing.T) {
	conv := conversation(
		msg("u1", model.RoleUser),
		msg("u2", model.RoleUser),
		msg("u3", model.RoleUser),
		msg("m1", model.RoleModel),
		msg("u4", model.RoleUser),
	)

	tests := []struct {
		name   string
		msgID  string
		anchor string
		ok     bool
	}{
		{"model message anchors one earlier", "m1", "u3", true},
		{"first user of run anchors at run end", "u1", "u3", true},
		{"middle user of run anchors at run end", "u2", "u3", true},
		{"last user anchors at itself", "u4", "u4", true},
		{"unknown message", "missing", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			anchor, ok := ResolveAnchor(conv, tc.msgID)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.anchor, anchor)
		})
	}
}

func TestResolveAnchor_LeadingModelMessage(t *testing.T) {
	conv := conversation(msg("m0", model.RoleModel))
	_, ok := ResolveAnchor(conv, "m0")
	assert.False(t, ok)
}

// =============================================================================
// STORE OPERATION TESTS
// =============================================================================

func TestEnsure_LazyAndIdempotent(t *testing.T) {
	conv := conversation(msg("u1", model.RoleUser), msg("m1", model.RoleModel))
	store := NewStore(conv)

	assert.Empty(t, conv.Branches, "linear conversation carries no branch state")

	bp, ok := store.Ensure("u1")
	require.True(t, ok)
	require.Equal(t, 1, bp.Len())
	assert.Equal(t, []string{"m1"}, ids(bp.Branches[0].Tail))

	again, ok := store.Ensure("u1")
	require.True(t, ok)
	assert.Same(t, bp, again)
	assert.Equal(t, 1, again.Len())
}

func TestEnsure_CapturesDeepCopy(t *testing.T) {
	conv := conversation(msg("u1", model.RoleUser), msg("m1", model.RoleModel))
	store := NewStore(conv)

	bp, _ := store.Ensure("u1")
	conv.Messages[1].Content = "edited live"
	conv.TruncateAfter("u1")

	require.Len(t, bp.Branches[0].Tail, 1)
	assert.Equal(t, "content of m1", bp.Branches[0].Tail[0].Content)
}

func TestOverwriteActive_ScenarioA(t *testing.T) {
	conv := conversation(msg("u1", model.RoleUser), msg("m1", model.RoleModel))
	store := NewStore(conv)

	anchor, ok := ResolveAnchor(conv, "m1")
	require.True(t, ok)
	require.Equal(t, "u1", anchor)

	require.True(t, store.OverwriteActive(anchor))

	bp, ok := store.Point("u1")
	require.True(t, ok)
	assert.Equal(t, 1, bp.Len())
	assert.Empty(t, bp.Branches[0].Tail)
	assert.Equal(t, []string{"u1"}, ids(conv.Messages))
}

func TestCreateSibling_ScenarioB(t *testing.T) {
	conv := conversation(msg("u1", model.RoleUser), msg("m1", model.RoleModel))
	store := NewStore(conv)

	first, ok := store.CreateSibling("u1")
	require.True(t, ok)
	conv.AddMessage(msg("m2", model.RoleModel))
	store.Sync()

	anchor, ok := ResolveAnchor(conv, "m2")
	require.True(t, ok)
	second, ok := store.CreateSibling(anchor)
	require.True(t, ok)
	assert.NotEqual(t, first, second)

	bp, ok := store.Point("u1")
	require.True(t, ok)
	assert.Equal(t, 3, bp.Len())
	assert.Equal(t, 2, bp.Active)
	assert.Equal(t, []string{"m1"}, ids(bp.Branches[0].Tail))
	assert.Equal(t, []string{"m2"}, ids(bp.Branches[1].Tail))
	assert.Empty(t, bp.Branches[2].Tail)
	assert.Equal(t, []string{"u1"}, ids(conv.Messages))
}

func TestSelect_TailFidelity(t *testing.T) {
	conv := conversation(msg("u1", model.RoleUser), msg("m1", model.RoleModel), msg("u2", model.RoleUser))
	store := NewStore(conv)

	_, ok := store.CreateSibling("u1")
	require.True(t, ok)
	conv.AddMessage(msg("m2", model.RoleModel))
	store.Sync()

	require.True(t, store.Select("u1", -1))
	bp, _ := store.Point("u1")
	assert.Equal(t, 0, bp.Active)
	if diff := cmp.Diff(bp.ActiveBranch().Tail, liveSuffix(t, conv, "u1")); diff != "" {
		t.Errorf("live suffix differs from stored tail (-tail +live):\n%s", diff)
	}
	assert.Equal(t, []string{"u1", "m1", "u2"}, ids(conv.Messages))

	require.True(t, store.Select("u1", 1))
	assert.Equal(t, []string{"u1", "m2"}, ids(conv.Messages))
}

func TestSelect_LiveSuffixDoesNotAliasTail(t *testing.T) {
	conv := conversation(msg("u1", model.RoleUser), msg("m1", model.RoleModel))
	store := NewStore(conv)
	store.CreateSibling("u1")
	require.True(t, store.Select("u1", -1))

	conv.Messages[1].Content = "edited after activation"

	bp, _ := store.Point("u1")
	assert.Equal(t, "content of m1", bp.Branches[0].Tail[0].Content)
}

func TestSelect_CapturesMessagesAddedUnderActiveBranch(t *testing.T) {
	conv := conversation(msg("u1", model.RoleUser), msg("m1", model.RoleModel))
	store := NewStore(conv)
	store.CreateSibling("u1")
	conv.AddMessage(msg("m2", model.RoleModel))
	conv.AddMessage(msg("u3", model.RoleUser))

	require.True(t, store.Select("u1", -1))
	require.True(t, store.Select("u1", 1))

	assert.Equal(t, []string{"u1", "m2", "u3"}, ids(conv.Messages))
}

func TestSelect_OutOfRangeAndBusy(t *testing.T) {
	conv := conversation(msg("u1", model.RoleUser), msg("m1", model.RoleModel))
	store := NewStore(conv)
	store.CreateSibling("u1")

	assert.False(t, store.Select("u1", 1), "already at last branch")
	assert.False(t, store.Select("u1", -5), "before first branch")
	assert.False(t, store.Select("u1", 0))
	assert.False(t, store.Select("missing", -1))

	busy := true
	store.Busy = func() bool { return busy }
	assert.False(t, store.Select("u1", -1))
	busy = false
	assert.True(t, store.Select("u1", -1))
}

func TestDeleteActive(t *testing.T) {
	conv := conversation(msg("u1", model.RoleUser), msg("m1", model.RoleModel))
	store := NewStore(conv)
	store.CreateSibling("u1")
	conv.AddMessage(msg("m2", model.RoleModel))
	store.Sync()

	require.True(t, store.DeleteActive("u1"))
	bp, ok := store.Point("u1")
	require.True(t, ok)
	assert.Equal(t, 1, bp.Len())
	assert.Equal(t, 0, bp.Active)
	assert.Equal(t, []string{"u1", "m1"}, ids(conv.Messages))

	assert.False(t, store.DeleteActive("u1"), "sole branch must not be deleted")
	assert.Equal(t, 1, bp.Len())
}

func TestDeleteActive_FirstBranchMovesToZero(t *testing.T) {
	conv := conversation(msg("u1", model.RoleUser), msg("m1", model.RoleModel))
	store := NewStore(conv)
	store.CreateSibling("u1")
	conv.AddMessage(msg("m2", model.RoleModel))
	store.Sync()
	require.True(t, store.Select("u1", -1))

	require.True(t, store.DeleteActive("u1"))
	bp, _ := store.Point("u1")
	assert.Equal(t, 0, bp.Active)
	assert.Equal(t, []string{"u1", "m2"}, ids(conv.Messages))
}

func TestCollapse(t *testing.T) {
	conv := conversation(msg("u1", model.RoleUser), msg("m1", model.RoleModel))
	store := NewStore(conv)
	store.CreateSibling("u1")
	conv.AddMessage(msg("m2", model.RoleModel))

	require.True(t, store.Collapse("u1"))
	_, ok := store.Point("u1")
	assert.False(t, ok)
	assert.Equal(t, []string{"u1", "m2"}, ids(conv.Messages))
	assert.False(t, store.Collapse("u1"))
}

func TestPrune_DropsUnreachableNestedPoints(t *testing.T) {
	conv := conversation(
		msg("u1", model.RoleUser),
		msg("m1", model.RoleModel),
		msg("u2", model.RoleUser),
		msg("m2", model.RoleModel),
	)
	store := NewStore(conv)
	store.CreateSibling("u2")
	conv.AddMessage(msg("m2b", model.RoleModel))

	// Regenerating u1 in place discards the tail that held u2.
	require.True(t, store.OverwriteActive("u1"))
	_, hasNested := conv.Branches["u2"]
	assert.False(t, hasNested)
}

func TestPrune_KeepsPointsInsideInactiveTails(t *testing.T) {
	conv := conversation(
		msg("u1", model.RoleUser),
		msg("m1", model.RoleModel),
		msg("u2", model.RoleUser),
		msg("m2", model.RoleModel),
	)
	store := NewStore(conv)
	store.CreateSibling("u2")
	conv.AddMessage(msg("m2b", model.RoleModel))
	store.Sync()

	store.CreateSibling("u1")
	_, hasNested := conv.Branches["u2"]
	require.True(t, hasNested, "u2 still lives in branch 0 of u1")

	require.True(t, store.Select("u1", -1))
	pos, total, ok := store.Position("u2")
	require.True(t, ok)
	assert.Equal(t, 2, pos)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{"u1", "m1", "u2", "m2b"}, ids(conv.Messages))
}

func TestOperationsOnMissingAnchor(t *testing.T) {
	store := NewStore(conversation(msg("u1", model.RoleUser)))

	_, ok := store.Ensure("missing")
	assert.False(t, ok)
	_, ok = store.CreateSibling("missing")
	assert.False(t, ok)
	assert.False(t, store.OverwriteActive("missing"))
	assert.False(t, store.DeleteActive("missing"))
	assert.False(t, store.Truncate("missing"))
}

// =============================================================================
// PROPERTY TESTS
// =============================================================================

func TestRandomOperations_BranchNonLossAndFidelity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	conv := conversation(msg("u1", model.RoleUser), msg("m1", model.RoleModel))
	store := NewStore(conv)
	next := 0

	for step := 0; step < 500; step++ {
		switch rng.Intn(5) {
		case 0:
			store.CreateSibling("u1")
		case 1:
			store.OverwriteActive("u1")
		case 2:
			store.Select("u1", rng.Intn(5)-2)
		case 3:
			store.DeleteActive("u1")
		case 4:
			next++
			conv.AddMessage(msg("gen"+string(rune('a'+next%26))+string(rune('a'+next/26%26)), model.RoleModel))
			store.Sync()
		}

		bp, ok := store.Point("u1")
		if !ok {
			continue
		}
		require.GreaterOrEqual(t, bp.Len(), 1, "step %d", step)
		require.True(t, bp.Valid(), "step %d", step)
		if diff := cmp.Diff(ids(bp.ActiveBranch().Tail), ids(liveSuffix(t, conv, "u1"))); diff != "" {
			t.Fatalf("step %d: active tail diverged from live suffix:\n%s", step, diff)
		}
	}
}
