package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDecodeInboundEveryKind(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		check func(t *testing.T, msg Inbound)
	}{
		{
			name:  "code update with numeric id",
			frame: `{"type":"code_update","fileId":9,"content":"x = 1"}`,
			check: func(t *testing.T, msg Inbound) {
				m := msg.(*CodeUpdate)
				if m.FileID != "9" || m.Content != "x = 1" {
					t.Errorf("got %+v", m)
				}
			},
		},
		{
			name:  "code update with string id",
			frame: `{"type":"code_update","fileId":"9","content":""}`,
			check: func(t *testing.T, msg Inbound) {
				if m := msg.(*CodeUpdate); m.FileID != "9" {
					t.Errorf("fileId = %q", m.FileID)
				}
			},
		},
		{
			name:  "chat message",
			frame: `{"type":"chat_message","user_id":5,"username":"ann","message":"hi"}`,
			check: func(t *testing.T, msg Inbound) {
				m := msg.(*ChatMessage)
				if m.UserID != "5" || m.Username != "ann" || m.Text != "hi" {
					t.Errorf("got %+v", m)
				}
			},
		},
		{
			name:  "file tree invalidation",
			frame: `{"type":"file_tree_update","message":"File created"}`,
			check: func(t *testing.T, msg Inbound) {
				if m := msg.(*FileTreeInvalidate); m.Message != "File created" {
					t.Errorf("got %+v", m)
				}
			},
		},
		{
			name:  "alert count",
			frame: `{"type":"alert_update","message":"new","unresolved_count":4}`,
			check: func(t *testing.T, msg Inbound) {
				if m := msg.(*AlertInvalidate); m.UnresolvedCount != 4 {
					t.Errorf("got %+v", m)
				}
			},
		},
		{
			name:  "presence snapshot with mixed ids",
			frame: `{"type":"active_users","user_ids":[1,"2"]}`,
			check: func(t *testing.T, msg Inbound) {
				ids := msg.(*PresenceSnapshot).UserIDs()
				if len(ids) != 2 || ids[0] != "1" || ids[1] != "2" {
					t.Errorf("ids = %v", ids)
				}
			},
		},
		{
			name:  "empty presence snapshot",
			frame: `{"type":"active_users","user_ids":[]}`,
			check: func(t *testing.T, msg Inbound) {
				if ids := msg.(*PresenceSnapshot).UserIDs(); len(ids) != 0 {
					t.Errorf("ids = %v", ids)
				}
			},
		},
		{
			name:  "collaborator removed",
			frame: `{"type":"collaborator_update","message":"removed","removed_user_id":7}`,
			check: func(t *testing.T, msg Inbound) {
				m := msg.(*CollaboratorChanged)
				if m.RemovedUserID == nil || *m.RemovedUserID != "7" {
					t.Errorf("got %+v", m)
				}
			},
		},
		{
			name:  "collaborator added",
			frame: `{"type":"collaborator_update","message":"added"}`,
			check: func(t *testing.T, msg Inbound) {
				if m := msg.(*CollaboratorChanged); m.RemovedUserID != nil {
					t.Errorf("removed id = %v, want nil", *m.RemovedUserID)
				}
			},
		},
		{
			name:  "join request",
			frame: `{"type":"new_join_request"}`,
			check: func(t *testing.T, msg Inbound) {
				if _, ok := msg.(*JoinRequestCreated); !ok {
					t.Errorf("got %T", msg)
				}
			},
		},
		{
			name:  "doc list invalidation",
			frame: `{"type":"doc_list_update","message":"Document created"}`,
			check: func(t *testing.T, msg Inbound) {
				if m := msg.(*DocListInvalidate); m.Message != "Document created" {
					t.Errorf("got %+v", m)
				}
			},
		},
		{
			name:  "doc content with naive timestamp",
			frame: `{"type":"doc_content_update","documentId":3,"title":"T","content":"<p/>","updated_at":"2024-05-01T12:30:00.123456","updater_username":"bob"}`,
			check: func(t *testing.T, msg Inbound) {
				m := msg.(*DocContentUpdate)
				if m.DocumentID != "3" || m.UpdaterName != "bob" {
					t.Errorf("got %+v", m)
				}
				ts, ok := m.Timestamp()
				want := time.Date(2024, 5, 1, 12, 30, 0, 123456000, time.UTC)
				if !ok || !ts.Equal(want) {
					t.Errorf("timestamp = %s (%v), want %s", ts, ok, want)
				}
			},
		},
		{
			name:  "project approval",
			frame: `{"type":"project_approval_notification","project":{"id":12,"name":"demo"}}`,
			check: func(t *testing.T, msg Inbound) {
				var p struct {
					ID   int    `json:"id"`
					Name string `json:"name"`
				}
				if err := json.Unmarshal(msg.(*ProjectApproved).Project, &p); err != nil || p.ID != 12 {
					t.Errorf("project = %+v (%v)", p, err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := DecodeInbound([]byte(tt.frame))
			if err != nil {
				t.Fatalf("DecodeInbound failed: %v", err)
			}
			tt.check(t, msg)
		})
	}
}

func TestDecodeInboundRejects(t *testing.T) {
	tests := []struct {
		frame string
		want  error
	}{
		{`{"type":"mystery"}`, ErrUnknownType},
		{`{}`, ErrMalformedFrame},
		{`{"type":`, ErrMalformedFrame},
		{`{"type":"code_update","content":"no id"}`, ErrMalformedFrame},
		{`{"type":"doc_content_update","content":"no id"}`, ErrMalformedFrame},
		{`{"type":"active_users"}`, ErrMalformedFrame},
		{`{"type":"active_users","user_ids":"1,2"}`, ErrMalformedFrame},
		{`{"type":"alert_update","unresolved_count":-1}`, ErrMalformedFrame},
		{`{"type":"code_update","fileId":{"a":1}}`, ErrMalformedFrame},
	}

	for _, tt := range tests {
		_, err := DecodeInbound([]byte(tt.frame))
		if !errors.Is(err, tt.want) {
			t.Errorf("DecodeInbound(%s) err = %v, want %v", tt.frame, err, tt.want)
		}
	}
}

func TestKnownTypesCoversEveryKind(t *testing.T) {
	if got := len(KnownTypes()); got != 10 {
		t.Errorf("known types = %d, want 10", got)
	}
}

func TestEncodeOutbound(t *testing.T) {
	frame, err := EncodeOutbound(CodeEdit{FileID: "9", Content: "ab"})
	if err != nil {
		t.Fatalf("EncodeOutbound failed: %v", err)
	}
	if got := string(frame); got != `{"type":"code_update","fileId":"9","content":"ab"}` {
		t.Errorf("frame = %s", got)
	}

	frame, err = EncodeOutbound(&ChatSend{Text: "hello"})
	if err != nil {
		t.Fatalf("EncodeOutbound failed: %v", err)
	}
	if got := string(frame); got != `{"type":"chat_message","message":"hello"}` {
		t.Errorf("frame = %s", got)
	}
	if strings.Contains(string(frame), "token") {
		t.Error("outbound frame carries a credential field")
	}

	if _, err := EncodeOutbound(FileTreeInvalidate{}); err == nil {
		t.Error("inbound-only kind was encoded")
	}
}
