package draft

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"quill/api/internal/notify"
	"quill/api/internal/sanitize"
	"quill/api/internal/store"
	"quill/api/internal/util"
)

// RemoteSaver is the optional callback invoked on manual save, typically a
// backend API call. Its absence never disables local persistence.
type RemoteSaver func(ctx context.Context, content string) error

// Options configures a draft session.
type Options struct {
	Store             store.DraftStore
	Notifier          notify.Notifier
	RemoteSaver       RemoteSaver
	AutosaveInterval  time.Duration
	RemoteSaveTimeout time.Duration
}

// SaveReceipt reports the outcome of a manual save. RemoteError is
// user-visible and non-fatal: the local save already happened.
type SaveReceipt struct {
	VersionID   string    `json:"versionId"`
	SavedAt     time.Time `json:"savedAt"`
	RemoteError string    `json:"remoteError,omitempty"`
}

// View is a read-only copy of session state for the presentation layer.
type View struct {
	CaseID              string                  `json:"caseId"`
	Content             string                  `json:"content"`
	History             []store.VersionSnapshot `json:"history"`
	Comments            []store.Comment         `json:"comments"`
	ChangeLog           []store.ChangeEntry     `json:"changeLog"`
	LastSavedAt         *time.Time              `json:"lastSavedAt"`
	CollaboratorSavedAt *time.Time              `json:"collaboratorSavedAt"`
	TrackChanges        bool                    `json:"trackChanges"`
	PersistenceDegraded bool                    `json:"persistenceDegraded"`
}

// Session owns one case's draft content and mediates every mutation path:
// local edits, manual save, autosave, external content arrival, restore,
// comments and change tracking. All mutations sanitize first, then
// persist; only manual saves broadcast to other contexts.
type Session struct {
	caseID    string
	contextID string

	mu      sync.Mutex
	content string
	// baseline is the last externally imported content, used to suppress
	// duplicate import-triggered versions.
	baseline string
	// lastSnapshotContent is what the newest recorded version holds; the
	// autosave tick compares against it.
	lastSnapshotContent string
	history             *History
	changes             *ChangeLog
	comments            *Comments
	lastSavedAt         *time.Time
	collabSavedAt       *time.Time
	persistenceDegraded bool
	closed              bool

	store       store.DraftStore
	notifier    notify.Notifier
	remoteSaver RemoteSaver
	saveTimeout time.Duration

	now         func() time.Time
	stopCh      chan struct{}
	unsubscribe func()
}

// NewSession loads the stored aggregate for caseID, or seeds from the
// sanitized initial content when none exists, then starts autosave and the
// collaborator-save subscription.
func NewSession(ctx context.Context, caseID, initialContent string, opts Options) *Session {
	if opts.Notifier == nil {
		opts.Notifier = notify.NoopNotifier{}
	}
	if opts.AutosaveInterval <= 0 {
		opts.AutosaveInterval = 5 * time.Minute
	}
	if opts.RemoteSaveTimeout <= 0 {
		opts.RemoteSaveTimeout = 10 * time.Second
	}

	s := &Session{
		caseID:      caseID,
		contextID:   util.NewRequestID(),
		store:       opts.Store,
		notifier:    opts.Notifier,
		remoteSaver: opts.RemoteSaver,
		saveTimeout: opts.RemoteSaveTimeout,
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}

	loaded, err := s.store.Load(ctx, caseID)
	if err != nil {
		// a broken store degrades to in-memory editing, same as save
		logrus.Errorf("draft %s: load failed, starting empty: %v", caseID, err)
		s.persistenceDegraded = true
	}

	if loaded != nil {
		s.content = sanitize.Sanitize(loaded.Content)
		s.baseline = s.content
		s.history = NewHistory(loaded.History)
		s.comments = NewComments(loaded.Comments)
		s.changes = NewChangeLog(loaded.ChangeLog)
		s.lastSavedAt = loaded.LastSavedAt
	} else {
		s.content = sanitize.Sanitize(initialContent)
		s.baseline = s.content
		s.history = NewHistory(nil)
		s.comments = NewComments(nil)
		s.changes = NewChangeLog(nil)
	}
	s.lastSnapshotContent = s.content

	unsubscribe, err := s.notifier.Subscribe(ctx, caseID, s.onCollaboratorSave)
	if err != nil {
		logrus.Warnf("draft %s: save notifications unavailable: %v", caseID, err)
		unsubscribe = func() {}
	}
	s.unsubscribe = unsubscribe

	go s.autosaveLoop(opts.AutosaveInterval)

	return s
}

// onCollaboratorSave updates the save-status display only. It never
// touches local content: there is no merge, last local write wins.
func (s *Session) onCollaboratorSave(event notify.SaveEvent) {
	if event.Origin == s.contextID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	savedAt := event.SavedAt
	s.collabSavedAt = &savedAt
}

func (s *Session) autosaveLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.autosave()
		}
	}
}

// autosave records an auto version only when content changed since the
// last recorded version. Auto saves are local: no broadcast.
func (s *Session) autosave() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.content == s.lastSnapshotContent {
		return
	}
	s.recordVersionLocked(store.ReasonAuto, s.content)
	s.persistLocked(context.Background())
}

// UpdateContent applies a local edit. The sanitized result becomes the new
// current content and is persisted immediately.
func (s *Session) UpdateContent(ctx context.Context, raw string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.content = sanitize.Sanitize(raw)
	s.persistLocked(ctx)
	return s.content
}

// SetExternalContent reconciles freshly supplied content (e.g. a new AI
// generation) against the imported baseline. Unchanged content is ignored
// so upstream re-renders cannot flood history with identical ai versions.
func (s *Session) SetExternalContent(ctx context.Context, raw string) (store.VersionSnapshot, bool) {
	sanitized := sanitize.Sanitize(raw)

	s.mu.Lock()
	defer s.mu.Unlock()
	if sanitized == s.baseline {
		return store.VersionSnapshot{}, false
	}
	s.content = sanitized
	s.baseline = sanitized
	snapshot := s.recordVersionLocked(store.ReasonAI, sanitized)
	s.persistLocked(ctx)
	return snapshot, true
}

// SaveManual records a manual version, persists, invokes the remote saver
// if one is wired (its failure is reported, never raised), then broadcasts
// the save to other contexts on the same case.
func (s *Session) SaveManual(ctx context.Context) SaveReceipt {
	s.mu.Lock()
	savedAt := s.now().UTC()
	// capture, not reference: the save ships the content as of invocation
	// even if edits continue while the remote call is in flight
	captured := s.content
	snapshot := s.recordVersionLocked(store.ReasonManual, captured)
	s.lastSavedAt = &savedAt
	s.persistLocked(ctx)
	s.mu.Unlock()

	receipt := SaveReceipt{VersionID: snapshot.ID, SavedAt: savedAt}

	if s.remoteSaver != nil {
		remoteCtx, cancel := context.WithTimeout(ctx, s.saveTimeout)
		if err := s.remoteSaver(remoteCtx, captured); err != nil {
			logrus.Warnf("draft %s: remote save failed: %v", s.caseID, err)
			receipt.RemoteError = err.Error()
		}
		cancel()
	}

	event := notify.SaveEvent{DocumentID: s.caseID, SavedAt: savedAt, Origin: s.contextID}
	if err := s.notifier.Publish(ctx, event); err != nil {
		logrus.Warnf("draft %s: save broadcast failed: %v", s.caseID, err)
	}

	return receipt
}

// Restore installs a snapshot's content as current. An unknown id (already
// evicted, or stale UI state) is a no-op. The restore itself is not
// recorded as a new version.
func (s *Session) Restore(ctx context.Context, versionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, ok := s.history.Restore(versionID)
	if !ok {
		return "", false
	}
	s.content = sanitize.Sanitize(content)
	s.persistLocked(ctx)
	return s.content, true
}

// AddComment anchors an annotation to the selected text.
func (s *Session) AddComment(ctx context.Context, anchorText, body string) store.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	comment := s.comments.Add(anchorText, body, s.now().UTC())
	s.persistLocked(ctx)
	return comment
}

// ToggleComment flips one comment's resolved flag; unknown ids are no-ops.
func (s *Session) ToggleComment(ctx context.Context, commentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.comments.ToggleResolved(commentID) {
		return false
	}
	s.persistLocked(ctx)
	return true
}

// SetTrackChanges toggles change tracking.
func (s *Session) SetTrackChanges(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if enabled {
		s.changes.Enable()
	} else {
		s.changes.Disable()
	}
}

// RecordChange logs one edit delta while tracking is enabled.
func (s *Session) RecordChange(ctx context.Context, kind, text string) (store.ChangeEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, recorded := s.changes.Record(kind, text, s.now().UTC())
	if !recorded {
		return store.ChangeEntry{}, false
	}
	s.persistLocked(ctx)
	return entry, true
}

// View returns a copy of the current state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		CaseID:              s.caseID,
		Content:             s.content,
		History:             s.history.Snapshots(),
		Comments:            s.comments.List(),
		ChangeLog:           s.changes.Entries(),
		LastSavedAt:         s.lastSavedAt,
		CollaboratorSavedAt: s.collabSavedAt,
		TrackChanges:        s.changes.Enabled(),
		PersistenceDegraded: s.persistenceDegraded,
	}
}

// Close stops autosave and the save subscription. The session is torn
// down rather than reused.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.stopCh)
	s.unsubscribe()
}

func (s *Session) recordVersionLocked(reason, content string) store.VersionSnapshot {
	snapshot := s.history.Record(reason, content, s.now().UTC())
	s.lastSnapshotContent = content
	return snapshot
}

// persistLocked writes the aggregate, swallowing failures: a broken store
// must never interrupt editing. The degraded flag drives a non-blocking
// status indicator.
func (s *Session) persistLocked(ctx context.Context) {
	state := &store.DraftState{
		Content:     s.content,
		History:     s.history.Snapshots(),
		LastSavedAt: s.lastSavedAt,
		Comments:    s.comments.List(),
		ChangeLog:   s.changes.Entries(),
	}
	if err := s.store.Save(ctx, s.caseID, state); err != nil {
		logrus.Errorf("draft %s: persist failed: %v", s.caseID, err)
		s.persistenceDegraded = true
		return
	}
	s.persistenceDegraded = false
}
