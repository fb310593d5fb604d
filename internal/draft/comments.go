package draft

import (
	"time"

	"github.com/google/uuid"

	"quill/api/internal/store"
)

// Comments manages anchored inline annotations. Comments are never
// deleted; only the resolved flag mutates.
type Comments struct {
	entries []store.Comment
}

func NewComments(existing []store.Comment) *Comments {
	c := &Comments{}
	c.entries = append(c.entries, existing...)
	return c
}

// Add creates a comment anchored by the text selected at creation time.
func (c *Comments) Add(anchorText, body string, at time.Time) store.Comment {
	comment := store.Comment{
		ID:         uuid.NewString(),
		AnchorText: anchorText,
		Body:       body,
		Resolved:   false,
		CreatedAt:  at,
	}
	c.entries = append(c.entries, comment)
	return comment
}

// ToggleResolved flips the resolved flag of exactly one comment, matched
// by id. An unknown id is a no-op and reports false.
func (c *Comments) ToggleResolved(commentID string) bool {
	for i := range c.entries {
		if c.entries[i].ID == commentID {
			c.entries[i].Resolved = !c.entries[i].Resolved
			return true
		}
	}
	return false
}

// List returns a copy of the comments in creation order.
func (c *Comments) List() []store.Comment {
	out := make([]store.Comment, len(c.entries))
	copy(out, c.entries)
	return out
}
