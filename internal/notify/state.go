package notify

import (
	"sync"

	"livesync/internal/models"
)

/*
LEARNING: UNSEEN-ACTIVITY FLAGS

A flag per (scope, channel) says "something happened here that you have
not looked at". It is set by inbound activity unless the view that shows
the channel currently has focus, and cleared when that view gains focus.

Alerts are special: the server reports an absolute unresolved count, and
a count of zero clears the flag no matter what the focus is.

Flags live in memory only; a remounted view starts from false.
*/

type key struct {
	scope   models.Scope
	channel models.Channel
}

// State tracks notification flags and focus for every scope
type State struct {
	mu      sync.Mutex
	flags   map[key]bool
	focused map[key]bool
}

func NewState() *State {
	return &State{
		flags:   make(map[key]bool),
		focused: make(map[key]bool),
	}
}

// OnActivity sets the flag unless the channel's view is focused
func (s *State) OnActivity(scope models.Scope, channel models.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{scope, channel}
	if s.focused[k] {
		return
	}
	s.flags[k] = true
}

// OnAlertCount applies a server-reported unresolved alert count
func (s *State) OnAlertCount(scope models.Scope, unresolved int) {
	if unresolved == 0 {
		s.MarkSeen(scope, models.ChannelAlerts)
		return
	}
	s.OnActivity(scope, models.ChannelAlerts)
}

// OnFocus marks the channel's view as focused and clears its flag
func (s *State) OnFocus(scope models.Scope, channel models.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{scope, channel}
	s.focused[k] = true
	delete(s.flags, k)
}

// OnBlur marks the channel's view as no longer focused
func (s *State) OnBlur(scope models.Scope, channel models.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.focused, key{scope, channel})
}

// MarkSeen clears the flag without changing focus
func (s *State) MarkSeen(scope models.Scope, channel models.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flags, key{scope, channel})
}

func (s *State) Flag(scope models.Scope, channel models.Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[key{scope, channel}]
}

func (s *State) Focused(scope models.Scope, channel models.Channel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.focused[key{scope, channel}]
}

// Flags returns every raised flag of a scope
func (s *State) Flags(scope models.Scope) map[models.Channel]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[models.Channel]bool)
	for k, v := range s.flags {
		if k.scope == scope && v {
			out[k.channel] = true
		}
	}
	return out
}

// Reset drops flags and focus for a scope (used on remount)
func (s *State) Reset(scope models.Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k := range s.flags {
		if k.scope == scope {
			delete(s.flags, k)
		}
	}
	for k := range s.focused {
		if k.scope == scope {
			delete(s.focused, k)
		}
	}
}
