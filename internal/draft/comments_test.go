package draft

import (
	"testing"
	"time"
)

func TestCommentsAdd(t *testing.T) {
	c := NewComments(nil)
	at := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	comment := c.Add("the defendant", "verify the date of service", at)
	if comment.ID == "" {
		t.Error("comment id missing")
	}
	if comment.AnchorText != "the defendant" || comment.Body != "verify the date of service" {
		t.Errorf("comment = %+v", comment)
	}
	if comment.Resolved {
		t.Error("new comments start unresolved")
	}
	if !comment.CreatedAt.Equal(at) {
		t.Errorf("createdAt = %v, want %v", comment.CreatedAt, at)
	}
}

func TestToggleResolvedAffectsExactlyOne(t *testing.T) {
	c := NewComments(nil)
	first := c.Add("clause 4", "ambiguous", time.Now())
	second := c.Add("clause 7", "missing citation", time.Now())

	if !c.ToggleResolved(first.ID) {
		t.Fatal("expected toggle to find comment")
	}

	list := c.List()
	if !list[0].Resolved {
		t.Error("first comment should be resolved")
	}
	if list[1].Resolved {
		t.Errorf("second comment %s must be untouched", second.ID)
	}
}

func TestToggleResolvedTwiceRestoresOriginalState(t *testing.T) {
	c := NewComments(nil)
	comment := c.Add("exhibit b", "needs stamp", time.Now())

	c.ToggleResolved(comment.ID)
	c.ToggleResolved(comment.ID)

	if c.List()[0].Resolved {
		t.Error("double toggle should restore unresolved state")
	}
}

func TestToggleResolvedUnknownIDIsNoop(t *testing.T) {
	c := NewComments(nil)
	c.Add("clause 1", "check", time.Now())

	if c.ToggleResolved("cmt_missing") {
		t.Error("expected unknown id to report false")
	}
	if c.List()[0].Resolved {
		t.Error("no comment should have been touched")
	}
}
