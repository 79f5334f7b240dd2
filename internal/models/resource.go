package models

import "time"

// ResourceKind distinguishes code files from rich-text documents
type ResourceKind string

const (
	ResourceFile     ResourceKind = "file"
	ResourceDocument ResourceKind = "document"
)

// ResourceRef addresses an editable resource for the CRUD layer.
// ProjectID is needed for documents, whose REST path is project-scoped.
type ResourceRef struct {
	ID        string       `json:"id"`
	Kind      ResourceKind `json:"kind"`
	ProjectID string       `json:"project_id,omitempty"`
}

// EditableResource is the client-side state of one open file or document
type EditableResource struct {
	Ref                  ResourceRef `json:"ref"`
	Title                string      `json:"title,omitempty"`
	LocalContent         string      `json:"local_content"`
	LastBroadcastContent string      `json:"last_broadcast_content"`
	LastPersistedContent string      `json:"last_persisted_content"`
	UpdatedAt            time.Time   `json:"updated_at,omitempty"`
	UpdaterName          string      `json:"updater_name,omitempty"`
}

// Dirty reports whether local content differs from what was last persisted
func (r EditableResource) Dirty() bool {
	return r.LocalContent != r.LastPersistedContent
}

// SaveResult is the authoritative metadata returned by a durable write
type SaveResult struct {
	Title       string    `json:"title,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
	UpdaterName string    `json:"updater_name,omitempty"`
}
