// Package draft implements the versioning engine behind the case draft
// editor: bounded snapshot history, change tracking, inline comments, and
// the session controller that owns one draft's content.
package draft

import (
	"time"

	"github.com/google/uuid"

	"quill/api/internal/store"
)

// HistoryLimit bounds the snapshot list per draft.
const HistoryLimit = 10

// History is a bounded, reason-tagged snapshot list, newest last. The
// bound is an invariant: appending past the limit evicts from the head,
// oldest first. Snapshots are never mutated.
type History struct {
	limit   int
	entries []store.VersionSnapshot
}

// NewHistory wraps previously persisted snapshots, trimming from the head
// if a stored list somehow exceeds the bound.
func NewHistory(existing []store.VersionSnapshot) *History {
	h := &History{limit: HistoryLimit}
	h.entries = append(h.entries, existing...)
	if len(h.entries) > h.limit {
		h.entries = h.entries[len(h.entries)-h.limit:]
	}
	return h
}

// Record appends a snapshot of content tagged with reason.
func (h *History) Record(reason, content string, at time.Time) store.VersionSnapshot {
	snapshot := store.VersionSnapshot{
		ID:      uuid.NewString(),
		Content: content,
		SavedAt: at,
		Reason:  reason,
	}
	h.entries = append(h.entries, snapshot)
	if len(h.entries) > h.limit {
		h.entries = h.entries[len(h.entries)-h.limit:]
	}
	return snapshot
}

// Restore returns the content of the snapshot with the given id. A missing
// id (evicted or invalid) is a no-op for the caller, not an error.
func (h *History) Restore(versionID string) (string, bool) {
	for _, snapshot := range h.entries {
		if snapshot.ID == versionID {
			return snapshot.Content, true
		}
	}
	return "", false
}

// Latest returns the most recent snapshot, if any.
func (h *History) Latest() (store.VersionSnapshot, bool) {
	if len(h.entries) == 0 {
		return store.VersionSnapshot{}, false
	}
	return h.entries[len(h.entries)-1], true
}

// Snapshots returns a copy of the list, oldest first.
func (h *History) Snapshots() []store.VersionSnapshot {
	out := make([]store.VersionSnapshot, len(h.entries))
	copy(out, h.entries)
	return out
}
