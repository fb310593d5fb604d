package store

import "time"

// Version snapshot reasons.
const (
	ReasonManual = "manual"
	ReasonAuto   = "auto"
	ReasonAI     = "ai"
)

// Change entry kinds.
const (
	ChangeInsert = "insert"
	ChangeDelete = "delete"
)

// DraftState is the full persisted aggregate for one case's draft. It is
// the only thing the store knows how to load and save, and the only thing
// two editing contexts on the same case ever share.
type DraftState struct {
	Content     string            `json:"content"`
	History     []VersionSnapshot `json:"history"`
	LastSavedAt *time.Time        `json:"lastSavedAt"`
	Comments    []Comment         `json:"comments"`
	ChangeLog   []ChangeEntry     `json:"changeLog"`
}

// VersionSnapshot is an immutable, reason-tagged copy of draft content.
type VersionSnapshot struct {
	ID      string    `json:"id"`
	Content string    `json:"content"`
	SavedAt time.Time `json:"savedAt"`
	Reason  string    `json:"reason"`
}

// Comment is an inline annotation anchored by the text that was selected
// when it was created, so it stays meaningful across reloads even after
// the surrounding content changes.
type Comment struct {
	ID         string    `json:"id"`
	AnchorText string    `json:"anchorText"`
	Body       string    `json:"body"`
	Resolved   bool      `json:"resolved"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ChangeEntry records one tracked edit delta.
type ChangeEntry struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
