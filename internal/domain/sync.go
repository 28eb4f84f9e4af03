package domain

import "time"

type SyncKind string

const (
	SyncSessionUpdated     SyncKind = "session_updated"
	SyncSessionInvalidated SyncKind = "session_invalidated"
	SyncSessionRefreshed   SyncKind = "session_refreshed"
)

// SyncMessage is ephemeral: it exists only in transit between contexts and
// is a hint to re-validate, never a source of truth.
type SyncMessage struct {
	ID       string    `json:"id"`
	Kind     SyncKind  `json:"kind"`
	Origin   string    `json:"origin"`
	EntityID EntityID  `json:"entity_id,omitempty"`
	Version  string    `json:"version,omitempty"`
	SentAt   time.Time `json:"sent_at"`
}
