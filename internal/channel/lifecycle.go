package channel

import (
	"fmt"
	"time"
)

// State classifies a channel's activity from time since last access.
type State string

const (
	StateActive   State = "active"
	StateIdle     State = "idle"
	StateInactive State = "inactive"
)

// Action is the recommended follow-up for a lifecycle state.
type Action string

const (
	ActionNone    Action = "none"
	ActionWarn    Action = "warn"
	ActionCleanup Action = "eligible_for_cleanup"
)

// LifecycleStatus is the computed activity view of one channel.
type LifecycleStatus struct {
	State           State
	DaysSinceAccess int
	Recommended     Action
}

// LifecyclePolicy classifies channels by elapsed days since last access.
// It never mutates data; the scan job and the monitoring API query it.
//
// Thresholds: a channel is IDLE once IdleDays whole days pass without
// access and INACTIVE (cleanup-eligible) once InactiveDays pass. A channel
// exactly on a threshold day takes the higher state.
type LifecyclePolicy struct {
	IdleDays     int
	InactiveDays int
}

// NewLifecyclePolicy builds a policy, enforcing inactive >= idle.
func NewLifecyclePolicy(idleDays, inactiveDays int) (LifecyclePolicy, error) {
	if idleDays < 1 {
		return LifecyclePolicy{}, fmt.Errorf("idle days must be at least 1, got %d", idleDays)
	}
	if inactiveDays < idleDays {
		return LifecyclePolicy{}, fmt.Errorf("inactive days (%d) must be >= idle days (%d)",
			inactiveDays, idleDays)
	}
	return LifecyclePolicy{IdleDays: idleDays, InactiveDays: inactiveDays}, nil
}

// Classify computes the lifecycle status for a last-accessed timestamp.
// Days elapsed use floor semantics (23h59m since access is 0 days).
func (p LifecyclePolicy) Classify(lastAccessedAt, now time.Time) LifecycleStatus {
	days := int(now.Sub(lastAccessedAt).Hours() / 24)
	if days < 0 {
		days = 0 // clock skew: a future timestamp reads as just accessed
	}

	var state State
	switch {
	case days >= p.InactiveDays:
		state = StateInactive
	case days >= p.IdleDays:
		state = StateIdle
	default:
		state = StateActive
	}

	return LifecycleStatus{
		State:           state,
		DaysSinceAccess: days,
		Recommended:     RecommendedAction(state),
	}
}

// RecommendedAction maps a state to its follow-up. Pure, no side effects.
func RecommendedAction(state State) Action {
	switch state {
	case StateIdle:
		return ActionWarn
	case StateInactive:
		return ActionCleanup
	default:
		return ActionNone
	}
}

// SelectByState filters channels in the target state, pairing each with
// its classification. Used by the scan job and the admin surface.
func (p LifecyclePolicy) SelectByState(channels []*Channel, target State, now time.Time) []ChannelStatus {
	var out []ChannelStatus
	for _, ch := range channels {
		status := p.Classify(ch.LastAccessedAt, now)
		if status.State == target {
			out = append(out, ChannelStatus{Channel: ch, Status: status})
		}
	}
	return out
}

// ChannelStatus pairs a channel with its computed lifecycle status.
type ChannelStatus struct {
	Channel *Channel
	Status  LifecycleStatus
}
