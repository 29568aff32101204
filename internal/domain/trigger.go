package domain

import "time"

// TriggerPolicy decides when a proposal's funding grant unlocks. The engine
// records a price sample after every trade and consults ShouldRelease on each
// funding check. Policies are pure over the proposal's recorded history, so
// repeated checks are side-effect free.
type TriggerPolicy interface {
	// Name identifies the policy in config and logs.
	Name() string
	// ShouldRelease reports whether the funding condition holds at now for
	// the given proposal.
	ShouldRelease(p *Proposal, now time.Time) bool
}
