// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package branch

import (
	"github.com/jeranaias/forkchat/internal/model"
)

// =============================================================================
// ANCHOR RESOLUTION
// =============================================================================

// ResolveAnchor returns the anchor for a rerun or branch action on msgID.
//
// For a model message the anchor is the message before it, so regeneration
// replaces the model's turn. For a user message the anchor is the last
// message of the contiguous run of user messages starting at it, so a
// multi-part user turn regenerates as a unit.
func ResolveAnchor(conv *model.Conversation, msgID string) (string, bool) {
	if conv == nil {
		return "", false
	}
	i := conv.IndexOf(msgID)
	if i < 0 {
		return "", false
	}
	msgs := conv.Messages
	if msgs[i].IsModel() {
		if i == 0 {
			return "", false
		}
		return msgs[i-1].ID, true
	}
	for i+1 < len(msgs) && msgs[i+1].IsUser() {
		i++
	}
	return msgs[i].ID, true
}

// =============================================================================
// STORE
// =============================================================================

// Store owns the anchor to BranchPoint index of one conversation.
type Store struct {
	conv *model.Conversation

	// Busy reports whether a generation is in flight. Navigation is refused
	// while it returns true.
	Busy func() bool
}

// NewStore creates a store over the conversation's branch index.
func NewStore(conv *model.Conversation) *Store {
	return &Store{conv: conv}
}

// Conversation returns the conversation the store operates on.
func (s *Store) Conversation() *model.Conversation {
	return s.conv
}

// SetConversation points the store at a different conversation value, as
// happens after resynchronizing from the service.
func (s *Store) SetConversation(conv *model.Conversation) {
	s.conv = conv
}

func (s *Store) busy() bool {
	return s.Busy != nil && s.Busy()
}

// Point returns the branch point rooted at the anchor, if it exists and the
// anchor is part of the live sequence.
func (s *Store) Point(anchorID string) (*model.BranchPoint, bool) {
	if s.conv == nil || s.conv.Branches == nil || s.conv.IndexOf(anchorID) < 0 {
		return nil, false
	}
	bp, ok := s.conv.Branches[anchorID]
	if !ok || !bp.Valid() {
		return nil, false
	}
	return bp, true
}

// Position returns the 1-based active position and the branch count.
func (s *Store) Position(anchorID string) (active, total int, ok bool) {
	bp, ok := s.Point(anchorID)
	if !ok {
		return 0, 0, false
	}
	return bp.Active + 1, bp.Len(), true
}

// Ensure returns the branch point for the anchor, creating one whose single
// branch captures a deep copy of the current suffix when none exists.
func (s *Store) Ensure(anchorID string) (*model.BranchPoint, bool) {
	if s.conv == nil {
		return nil, false
	}
	suffix, ok := s.conv.Suffix(anchorID)
	if !ok {
		return nil, false
	}
	if bp, ok := s.conv.Branches[anchorID]; ok && bp.Valid() {
		bp.ActiveBranch().Tail = model.CloneMessages(suffix)
		return bp, true
	}
	if s.conv.Branches == nil {
		s.conv.Branches = make(map[string]*model.BranchPoint)
	}
	bp := &model.BranchPoint{
		Active:   0,
		Branches: []*model.Branch{model.NewBranch(model.CloneMessages(suffix))},
	}
	s.conv.Branches[anchorID] = bp
	return bp, true
}

// CreateSibling appends an empty branch after the anchor, activates it and
// truncates the live sequence to end at the anchor. Returns the new branch id.
func (s *Store) CreateSibling(anchorID string) (string, bool) {
	bp, ok := s.Ensure(anchorID)
	if !ok {
		return "", false
	}
	b := model.NewBranch(nil)
	bp.Branches = append(bp.Branches, b)
	bp.Active = len(bp.Branches) - 1
	s.conv.TruncateAfter(anchorID)
	s.prune()
	return b.ID, true
}

// OverwriteActive clears the active branch's tail and truncates the live
// sequence to end at the anchor, ready for regeneration in place.
func (s *Store) OverwriteActive(anchorID string) bool {
	bp, ok := s.Ensure(anchorID)
	if !ok {
		return false
	}
	bp.ActiveBranch().Tail = model.CloneMessages(nil)
	s.conv.TruncateAfter(anchorID)
	s.prune()
	return true
}

// Select moves the active branch by delta and materializes its tail as the
// live suffix. Out-of-range moves and moves during a generation are no-ops.
func (s *Store) Select(anchorID string, delta int) bool {
	if s.busy() {
		return false
	}
	bp, ok := s.Point(anchorID)
	if !ok {
		return false
	}
	target := bp.Active + delta
	if delta == 0 || target < 0 || target >= bp.Len() {
		return false
	}
	s.capture(anchorID, bp)
	bp.Active = target
	return s.conv.ReplaceSuffix(anchorID, model.CloneMessages(bp.ActiveBranch().Tail))
}

// DeleteActive removes the active branch and swaps in the previous one.
// A branch point never drops to zero alternatives: with a single branch left
// the call is refused; use Collapse to discard the branch point instead.
func (s *Store) DeleteActive(anchorID string) bool {
	if s.busy() {
		return false
	}
	bp, ok := s.Point(anchorID)
	if !ok || bp.Len() <= 1 {
		return false
	}
	removed := bp.Active
	bp.Branches = append(bp.Branches[:removed:removed], bp.Branches[removed+1:]...)
	bp.Active = max(0, removed-1)
	s.conv.ReplaceSuffix(anchorID, model.CloneMessages(bp.ActiveBranch().Tail))
	s.prune()
	return true
}

// Collapse discards the branch point, keeping the live suffix as the only
// continuation.
func (s *Store) Collapse(anchorID string) bool {
	if s.busy() {
		return false
	}
	if _, ok := s.Point(anchorID); !ok {
		return false
	}
	delete(s.conv.Branches, anchorID)
	s.prune()
	return true
}

// Truncate drops every live message after the anchor.
func (s *Store) Truncate(anchorID string) bool {
	if s.conv == nil {
		return false
	}
	return s.conv.TruncateAfter(anchorID)
}

// Sync copies the live suffix into the active branch of every branch point
// whose anchor is live and drops branch points that became unreachable.
// Call after appending, deleting or resynchronizing messages.
func (s *Store) Sync() {
	if s.conv == nil {
		return
	}
	for anchorID, bp := range s.conv.Branches {
		if !bp.Valid() {
			continue
		}
		s.capture(anchorID, bp)
	}
	s.prune()
}

func (s *Store) capture(anchorID string, bp *model.BranchPoint) {
	if suffix, ok := s.conv.Suffix(anchorID); ok {
		bp.ActiveBranch().Tail = model.CloneMessages(suffix)
	}
}

// prune drops branch points whose anchor is neither live nor stored in any
// branch tail, and branch points that lost their invariants.
func (s *Store) prune() {
	for len(s.conv.Branches) > 0 && s.pruneOnce() {
	}
}

func (s *Store) pruneOnce() bool {
	known := make(map[string]bool, len(s.conv.Messages))
	for _, m := range s.conv.Messages {
		known[m.ID] = true
	}
	for _, bp := range s.conv.Branches {
		for _, b := range bp.Branches {
			for _, m := range b.Tail {
				known[m.ID] = true
			}
		}
	}
	removed := false
	for anchorID, bp := range s.conv.Branches {
		if !known[anchorID] || !bp.Valid() {
			delete(s.conv.Branches, anchorID)
			removed = true
		}
	}
	return removed
}
