// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// Branch is one frozen alternative continuation after an anchor.
type Branch struct {
	ID   string     `json:"id"`
	Tail []*Message `json:"tail"`
}

// NewBranch creates a branch holding the given tail as is.
func NewBranch(tail []*Message) *Branch {
	if tail == nil {
		tail = make([]*Message, 0)
	}
	return &Branch{ID: NewID(), Tail: tail}
}

// Clone returns a deep copy of the branch.
func (b *Branch) Clone() *Branch {
	return &Branch{ID: b.ID, Tail: CloneMessages(b.Tail)}
}

// BranchPoint is the set of alternatives rooted at one anchor message.
// Branches is never empty once created and Active is always a valid index.
type BranchPoint struct {
	Active   int       `json:"active"`
	Branches []*Branch `json:"branches"`
}

// Len returns the number of alternatives.
func (bp *BranchPoint) Len() int {
	return len(bp.Branches)
}

// ActiveBranch returns the branch currently materialized in the live sequence.
func (bp *BranchPoint) ActiveBranch() *Branch {
	if bp.Active < 0 || bp.Active >= len(bp.Branches) {
		return nil
	}
	return bp.Branches[bp.Active]
}

// Valid reports whether the structural invariants hold.
func (bp *BranchPoint) Valid() bool {
	return bp != nil && len(bp.Branches) > 0 && bp.Active >= 0 && bp.Active < len(bp.Branches)
}

// Clone returns a deep copy of the branch point.
func (bp *BranchPoint) Clone() *BranchPoint {
	c := &BranchPoint{Active: bp.Active, Branches: make([]*Branch, len(bp.Branches))}
	for i, b := range bp.Branches {
		c.Branches[i] = b.Clone()
	}
	return c
}
