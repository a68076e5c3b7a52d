package control

import (
	"sync"
	"time"

	"conductor/event"
)

// learnSession backs the StartLearn/GetLearnStatus/CancelLearn/GetLearnResult
// control IPC commands (spec §6.3): a one-shot capture of the next
// non-noise device event, returned to the caller instead of being
// dispatched through the normal pipeline (§3 Supplemented features).
type learnSession struct {
	mu       sync.Mutex
	active   bool
	deadline time.Time
	result   *event.InputEvent
}

// isLearnNoise excludes continuous-signal kinds (aftertouch, pitch bend)
// from capture — a learn session is meant to capture a deliberate gesture
// (a button, a CC, a program change), not wideband continuous data.
func isLearnNoise(ev event.InputEvent) bool {
	return ev.Kind == event.KindAftertouch || ev.Kind == event.KindPitchBend
}

// StartLearn begins a one-shot learn capture that expires after timeout.
func (c *Controller) StartLearn(timeout time.Duration) {
	c.learnMu.Lock()
	c.learn = &learnSession{active: true, deadline: time.Now().Add(timeout)}
	c.learnMu.Unlock()
}

// CancelLearn ends any in-progress learn capture without a result.
func (c *Controller) CancelLearn() {
	c.learnMu.Lock()
	if c.learn != nil {
		c.learn.mu.Lock()
		c.learn.active = false
		c.learn.mu.Unlock()
	}
	c.learnMu.Unlock()
}

// LearnStatus reports whether a capture is active and how long remains.
func (c *Controller) LearnStatus() (active bool, remaining time.Duration) {
	c.learnMu.Lock()
	s := c.learn
	c.learnMu.Unlock()
	if s == nil {
		return false, 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return false, 0
	}
	remaining = time.Until(s.deadline)
	if remaining < 0 {
		remaining = 0
	}
	return true, remaining
}

// LearnResult returns the captured event, if any. It does not change the
// session's state; the capture itself already ended the session.
func (c *Controller) LearnResult() (event.InputEvent, bool) {
	c.learnMu.Lock()
	s := c.learn
	c.learnMu.Unlock()
	if s == nil {
		return event.InputEvent{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return event.InputEvent{}, false
	}
	return *s.result, true
}

// ObserveForLearn gives an active learn session first look at a raw input
// event, ahead of the gesture processor (spec §3 Supplemented features).
// It returns true if the event was consumed by the capture and should not
// be forwarded to the processor.
func (c *Controller) ObserveForLearn(ev event.InputEvent) bool {
	c.learnMu.Lock()
	s := c.learn
	c.learnMu.Unlock()
	if s == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return false
	}
	if time.Now().After(s.deadline) {
		s.active = false
		return false
	}
	if isLearnNoise(ev) {
		return false
	}

	captured := ev
	s.result = &captured
	s.active = false
	return true
}
