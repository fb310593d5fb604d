// Package notify broadcasts manual-save events between editing contexts
// open on the same case. Delivery is at-most-once with no replay: only
// contexts subscribed at publish time observe the event.
package notify

import (
	"context"
	"time"
)

// SaveEvent is the broadcast payload. Origin identifies the publishing
// context so it can filter out its own events; the rest of the payload is
// what other contexts display ("a collaborator saved at T").
type SaveEvent struct {
	DocumentID string    `json:"documentId"`
	SavedAt    time.Time `json:"savedAt"`
	Origin     string    `json:"origin,omitempty"`
}

// Notifier is the save-event broadcast channel. A received event never
// carries content: it updates save-status display only.
type Notifier interface {
	Publish(ctx context.Context, event SaveEvent) error
	// Subscribe delivers events for one case until the returned stop
	// function is called.
	Subscribe(ctx context.Context, caseID string, handler func(SaveEvent)) (func(), error)
	Close() error
}

// NoopNotifier stands in when no broadcast backend is configured. Absence
// of cross-context notification is never fatal.
type NoopNotifier struct{}

func (NoopNotifier) Publish(context.Context, SaveEvent) error { return nil }

func (NoopNotifier) Subscribe(context.Context, string, func(SaveEvent)) (func(), error) {
	return func() {}, nil
}

func (NoopNotifier) Close() error { return nil }
