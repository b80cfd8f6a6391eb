package core

import "time"

// DefaultStepInterval is the time between two animation frames.
const DefaultStepInterval = 100 * time.Millisecond

// AnimationState is the single source of truth for what the bank is animating.
// The loop goroutine owns it; it carries no lock.
type AnimationState struct {
	Active       PatternID
	Cursor       int
	LastStep     time.Time
	StepInterval time.Duration
}

// NewAnimationState returns a stopped state anchored at now.
func NewAnimationState(stepInterval time.Duration, now time.Time) *AnimationState {
	if stepInterval <= 0 {
		stepInterval = DefaultStepInterval
	}
	return &AnimationState{
		Active:       Stopped,
		LastStep:     now,
		StepInterval: stepInterval,
	}
}

// Select makes p the active pattern and rewinds it to its first frame.
func (s *AnimationState) Select(p PatternID, now time.Time) {
	s.Active = p
	s.Cursor = 0
	s.LastStep = now
}

// Stop halts the animation.
func (s *AnimationState) Stop(now time.Time) {
	s.Active = Stopped
	s.Cursor = 0
	s.LastStep = now
}

// Due reports whether a running pattern should advance at now.
func (s *AnimationState) Due(now time.Time) bool {
	return s.Active != Stopped && now.Sub(s.LastStep) >= s.StepInterval
}

// Snapshot is a copy of the state safe to hand to other goroutines.
// Lines is empty between a select and the first rendered frame.
type Snapshot struct {
	Pattern PatternID `json:"-"`
	Name    string    `json:"pattern"`
	Cursor  int       `json:"cursor"`
	Lines   string    `json:"lines,omitempty"`
}
