package models

import "time"

// ConnState is the lifecycle state of a scope's connection
type ConnState int

const (
	StateClosed ConnState = iota
	StateConnecting
	StateOpen
	StateClosing
	StatePendingReconnect
)

func (s ConnState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StatePendingReconnect:
		return "pending_reconnect"
	default:
		return "unknown"
	}
}

func (s ConnState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StatusEvent reports a connection transition (or a transport error that
// did not change the state) to the owner of a scope
type StatusEvent struct {
	Scope   Scope     `json:"scope"`
	State   ConnState `json:"state"`
	Attempt int       `json:"attempt"`
	Err     error     `json:"-"`
	At      time.Time `json:"at"`
}

// Channel is a notification-producing stream within a scope
type Channel string

const (
	ChannelChat         Channel = "chat"
	ChannelAlerts       Channel = "alerts"
	ChannelJoinRequests Channel = "join_requests"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelChat, ChannelAlerts, ChannelJoinRequests:
		return true
	}
	return false
}

// SavePhase is the progress of one durable write
type SavePhase string

const (
	SaveSaving SavePhase = "saving"
	SaveSaved  SavePhase = "saved"
	SaveFailed SavePhase = "failed"
)

// SaveEvent is the transient status surfaced for durable writes
type SaveEvent struct {
	Scope  Scope       `json:"scope"`
	Ref    ResourceRef `json:"ref"`
	Phase  SavePhase   `json:"phase"`
	Result *SaveResult `json:"result,omitempty"`
	Err    error       `json:"-"`
}
