package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

/*
LEARNING: TAGGED UNION OVER JSON

Every frame on the project socket is a JSON object with a string "type"
discriminant plus kind-specific fields. Go has no sum types, so each kind
is its own struct implementing a small interface, and decoding happens in
two passes:
  1. Peek at "type" only
  2. Unmarshal the whole frame into the struct registered for that type

Unknown types are reported with ErrUnknownType so the router can drop them
without treating them as corruption.
*/

// MessageType is the wire discriminant carried in the "type" field
type MessageType string

const (
	TypeCodeUpdate         MessageType = "code_update"
	TypeChatMessage        MessageType = "chat_message"
	TypeFileTreeUpdate     MessageType = "file_tree_update"
	TypeAlertUpdate        MessageType = "alert_update"
	TypeActiveUsers        MessageType = "active_users"
	TypeCollaboratorUpdate MessageType = "collaborator_update"
	TypeNewJoinRequest     MessageType = "new_join_request"
	TypeDocListUpdate      MessageType = "doc_list_update"
	TypeDocContentUpdate   MessageType = "doc_content_update"
	TypeProjectApproval    MessageType = "project_approval_notification"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownType    = errors.New("unknown message type")
)

// ID is a resource or user identifier. The backend emits integer primary
// keys in some frames and strings in others; both decode to the same ID.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Inbound is any frame the server pushes to the client
type Inbound interface {
	Kind() MessageType
}

// CodeUpdate carries the full content of a file another participant is editing
type CodeUpdate struct {
	FileID  ID     `json:"fileId"`
	Content string `json:"content"`
}

type ChatMessage struct {
	UserID   ID     `json:"user_id"`
	Username string `json:"username"`
	Text     string `json:"message"`
}

type FileTreeInvalidate struct {
	Message string `json:"message"`
}

// AlertInvalidate reports the absolute number of unresolved alerts
type AlertInvalidate struct {
	Message         string `json:"message"`
	UnresolvedCount int    `json:"unresolved_count"`
}

// PresenceSnapshot is the complete set of active users in a scope.
// Learning: never a delta - the receiver replaces its set wholesale.
type PresenceSnapshot struct {
	ActiveUserIDs *[]ID `json:"user_ids"`
}

// UserIDs returns the snapshot as plain strings
func (p *PresenceSnapshot) UserIDs() []string {
	if p.ActiveUserIDs == nil {
		return nil
	}
	out := make([]string, 0, len(*p.ActiveUserIDs))
	for _, id := range *p.ActiveUserIDs {
		out = append(out, string(id))
	}
	return out
}

type CollaboratorChanged struct {
	Message       string `json:"message"`
	RemovedUserID *ID    `json:"removed_user_id,omitempty"`
}

type JoinRequestCreated struct{}

type DocListInvalidate struct {
	Message string `json:"message"`
}

// DocContentUpdate is broadcast after a document was durably saved
type DocContentUpdate struct {
	DocumentID  ID     `json:"documentId"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	UpdatedAt   string `json:"updated_at"`
	UpdaterName string `json:"updater_username"`
}

// Timestamp parses UpdatedAt, which the backend sends as an ISO-8601 string
// with or without a zone offset.
func (d *DocContentUpdate) Timestamp() (time.Time, bool) {
	if d.UpdatedAt == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, d.UpdatedAt); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ProjectApproved arrives on a user scope when a join request was approved
type ProjectApproved struct {
	Project json.RawMessage `json:"project"`
}

func (CodeUpdate) Kind() MessageType          { return TypeCodeUpdate }
func (ChatMessage) Kind() MessageType         { return TypeChatMessage }
func (FileTreeInvalidate) Kind() MessageType  { return TypeFileTreeUpdate }
func (AlertInvalidate) Kind() MessageType     { return TypeAlertUpdate }
func (PresenceSnapshot) Kind() MessageType    { return TypeActiveUsers }
func (CollaboratorChanged) Kind() MessageType { return TypeCollaboratorUpdate }
func (JoinRequestCreated) Kind() MessageType  { return TypeNewJoinRequest }
func (DocListInvalidate) Kind() MessageType   { return TypeDocListUpdate }
func (DocContentUpdate) Kind() MessageType    { return TypeDocContentUpdate }
func (ProjectApproved) Kind() MessageType     { return TypeProjectApproval }

var inboundKinds = map[MessageType]func() Inbound{
	TypeCodeUpdate:         func() Inbound { return &CodeUpdate{} },
	TypeChatMessage:        func() Inbound { return &ChatMessage{} },
	TypeFileTreeUpdate:     func() Inbound { return &FileTreeInvalidate{} },
	TypeAlertUpdate:        func() Inbound { return &AlertInvalidate{} },
	TypeActiveUsers:        func() Inbound { return &PresenceSnapshot{} },
	TypeCollaboratorUpdate: func() Inbound { return &CollaboratorChanged{} },
	TypeNewJoinRequest:     func() Inbound { return &JoinRequestCreated{} },
	TypeDocListUpdate:      func() Inbound { return &DocListInvalidate{} },
	TypeDocContentUpdate:   func() Inbound { return &DocContentUpdate{} },
	TypeProjectApproval:    func() Inbound { return &ProjectApproved{} },
}

// KnownTypes lists every inbound discriminant the client understands
func KnownTypes() []MessageType {
	types := make([]MessageType, 0, len(inboundKinds))
	for t := range inboundKinds {
		types = append(types, t)
	}
	return types
}

// DecodeInbound parses one frame into its typed message
func DecodeInbound(frame []byte) (Inbound, error) {
	var envelope struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(frame, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if envelope.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	newMessage, ok := inboundKinds[envelope.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, envelope.Type)
	}

	msg := newMessage()
	if err := json.Unmarshal(frame, msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, envelope.Type, err)
	}
	if err := validateInbound(msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, envelope.Type, err)
	}
	return msg, nil
}

func validateInbound(msg Inbound) error {
	switch m := msg.(type) {
	case *CodeUpdate:
		if m.FileID == "" {
			return errors.New("fileId is required")
		}
	case *DocContentUpdate:
		if m.DocumentID == "" {
			return errors.New("documentId is required")
		}
	case *PresenceSnapshot:
		if m.ActiveUserIDs == nil {
			return errors.New("user_ids is required")
		}
	case *AlertInvalidate:
		if m.UnresolvedCount < 0 {
			return errors.New("unresolved_count must not be negative")
		}
	}
	return nil
}

// Outbound is any frame the client sends. Outbound frames never carry
// credentials: the socket was authenticated when it was opened.
type Outbound interface {
	Kind() MessageType
}

// CodeEdit broadcasts the full local content of a file
type CodeEdit struct {
	FileID  string `json:"fileId"`
	Content string `json:"content"`
}

type ChatSend struct {
	Text string `json:"message"`
}

func (CodeEdit) Kind() MessageType { return TypeCodeUpdate }
func (ChatSend) Kind() MessageType { return TypeChatMessage }

func (m CodeEdit) MarshalJSON() ([]byte, error) {
	type body CodeEdit
	return json.Marshal(struct {
		Type MessageType `json:"type"`
		body
	}{m.Kind(), body(m)})
}

func (m ChatSend) MarshalJSON() ([]byte, error) {
	type body ChatSend
	return json.Marshal(struct {
		Type MessageType `json:"type"`
		body
	}{m.Kind(), body(m)})
}

// EncodeOutbound serializes an outbound message into a text frame
func EncodeOutbound(msg Outbound) ([]byte, error) {
	switch msg.(type) {
	case CodeEdit, *CodeEdit, ChatSend, *ChatSend:
	default:
		return nil, fmt.Errorf("unsupported outbound message %T", msg)
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", msg.Kind(), err)
	}
	return frame, nil
}
