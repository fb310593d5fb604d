package draft

import (
	"time"

	"github.com/google/uuid"

	"quill/api/internal/store"
)

// ChangeLogLimit bounds the tracked-change list per draft.
const ChangeLogLimit = 20

// ChangeLog records edit deltas while tracking is enabled. It is purely
// additive bookkeeping: it never blocks or transforms the edit itself.
type ChangeLog struct {
	limit   int
	enabled bool
	entries []store.ChangeEntry
}

func NewChangeLog(existing []store.ChangeEntry) *ChangeLog {
	c := &ChangeLog{limit: ChangeLogLimit}
	c.entries = append(c.entries, existing...)
	if len(c.entries) > c.limit {
		c.entries = c.entries[len(c.entries)-c.limit:]
	}
	return c
}

func (c *ChangeLog) Enable()       { c.enabled = true }
func (c *ChangeLog) Disable()      { c.enabled = false }
func (c *ChangeLog) Enabled() bool { return c.enabled }

// Record appends a change entry while tracking is enabled. It reports
// whether an entry was recorded; while disabled, edits pass untouched.
func (c *ChangeLog) Record(kind, text string, at time.Time) (store.ChangeEntry, bool) {
	if !c.enabled {
		return store.ChangeEntry{}, false
	}
	entry := store.ChangeEntry{
		ID:        uuid.NewString(),
		Kind:      kind,
		Text:      text,
		Timestamp: at,
	}
	c.entries = append(c.entries, entry)
	if len(c.entries) > c.limit {
		c.entries = c.entries[len(c.entries)-c.limit:]
	}
	return entry, true
}

// Entries returns a copy of the log, oldest first.
func (c *ChangeLog) Entries() []store.ChangeEntry {
	out := make([]store.ChangeEntry, len(c.entries))
	copy(out, c.entries)
	return out
}
