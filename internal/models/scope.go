package models

import (
	"fmt"
	"strings"
)

// ScopeKind names the kind of synchronization domain a socket serves
type ScopeKind string

const (
	ScopeProject ScopeKind = "project"
	ScopeUser    ScopeKind = "user"
)

// Scope identifies one synchronization domain.
// Learning: Scope is a comparable value type, so it can key maps directly
// (one live Connection per Scope per process).
type Scope struct {
	Kind ScopeKind `json:"kind"`
	ID   string    `json:"id"`
}

func ProjectScope(id string) Scope { return Scope{Kind: ScopeProject, ID: id} }

func UserScope(id string) Scope { return Scope{Kind: ScopeUser, ID: id} }

// String renders the scope as "kind:id", e.g. "project:42"
func (s Scope) String() string {
	return fmt.Sprintf("%s:%s", s.Kind, s.ID)
}

// Path returns the socket path for the scope, e.g. "/ws/project/42/"
func (s Scope) Path() string {
	return fmt.Sprintf("/ws/%s/%s/", s.Kind, s.ID)
}

// Validate rejects scopes the server cannot route
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeProject, ScopeUser:
	default:
		return fmt.Errorf("unknown scope kind: %q", s.Kind)
	}
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("scope %s has an empty id", s.Kind)
	}
	return nil
}

// ParseScope parses the "kind:id" form produced by String
func ParseScope(raw string) (Scope, error) {
	kind, id, ok := strings.Cut(raw, ":")
	if !ok {
		return Scope{}, fmt.Errorf("invalid scope %q: expected kind:id", raw)
	}
	scope := Scope{Kind: ScopeKind(kind), ID: id}
	if err := scope.Validate(); err != nil {
		return Scope{}, err
	}
	return scope, nil
}
