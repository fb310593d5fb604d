package app

import (
	"context"
	"strings"
	"sync"

	"quill/api/internal/config"
	"quill/api/internal/draft"
	"quill/api/internal/notify"
	"quill/api/internal/store"
)

// Service owns one draft session per case id in this process. Sessions are
// created on first touch and live until Close; separate processes (or
// browser tabs talking to separate processes) coordinate only through the
// durable store and the save-event broadcast.
type Service struct {
	cfg         config.Config
	store       store.DraftStore
	notifier    notify.Notifier
	remoteSaver draft.RemoteSaver

	mu       sync.Mutex
	sessions map[string]*draft.Session
	closed   bool
}

func New(cfg config.Config, dataStore store.DraftStore, notifier notify.Notifier, remoteSaver draft.RemoteSaver) *Service {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	return &Service{
		cfg:         cfg,
		store:       dataStore,
		notifier:    notifier,
		remoteSaver: remoteSaver,
		sessions:    make(map[string]*draft.Session),
	}
}

// session returns the live session for caseID, creating it (loading stored
// state or seeding from initialContent) on first touch.
func (s *Service) session(ctx context.Context, caseID, initialContent string) *draft.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[caseID]; ok {
		return existing
	}
	created := draft.NewSession(ctx, caseID, initialContent, draft.Options{
		Store:             s.store,
		Notifier:          s.notifier,
		RemoteSaver:       s.remoteSaver,
		AutosaveInterval:  s.cfg.AutosaveInterval,
		RemoteSaveTimeout: s.cfg.RemoteSaveTimeout,
	})
	s.sessions[caseID] = created
	return created
}

func validCaseID(caseID string) error {
	if strings.TrimSpace(caseID) == "" {
		return validationError("case id is required")
	}
	return nil
}

// OpenDraft starts (or resumes) the editing session for a case. The
// initial content seeds the draft only when no stored state exists.
func (s *Service) OpenDraft(ctx context.Context, caseID, initialContent string) (draft.View, error) {
	if err := validCaseID(caseID); err != nil {
		return draft.View{}, err
	}
	return s.session(ctx, caseID, initialContent).View(), nil
}

func (s *Service) GetDraft(ctx context.Context, caseID string) (draft.View, error) {
	return s.OpenDraft(ctx, caseID, "")
}

// UpdateContent applies a local edit and returns the sanitized content.
func (s *Service) UpdateContent(ctx context.Context, caseID, content string) (string, error) {
	if err := validCaseID(caseID); err != nil {
		return "", err
	}
	return s.session(ctx, caseID, "").UpdateContent(ctx, content), nil
}

// ApplyGenerated hands freshly generated content to the session; a
// generation identical to the imported baseline records nothing.
func (s *Service) ApplyGenerated(ctx context.Context, caseID, content string) (store.VersionSnapshot, bool, error) {
	if err := validCaseID(caseID); err != nil {
		return store.VersionSnapshot{}, false, err
	}
	snapshot, recorded := s.session(ctx, caseID, "").SetExternalContent(ctx, content)
	return snapshot, recorded, nil
}

func (s *Service) SaveDraft(ctx context.Context, caseID string) (draft.SaveReceipt, error) {
	if err := validCaseID(caseID); err != nil {
		return draft.SaveReceipt{}, err
	}
	return s.session(ctx, caseID, "").SaveManual(ctx), nil
}

// RestoreVersion installs a snapshot as current content. An unknown id is
// a no-op reported to the caller, not an error: history may have been
// evicted out from under a stale UI reference.
func (s *Service) RestoreVersion(ctx context.Context, caseID, versionID string) (string, bool, error) {
	if err := validCaseID(caseID); err != nil {
		return "", false, err
	}
	content, ok := s.session(ctx, caseID, "").Restore(ctx, versionID)
	return content, ok, nil
}

func (s *Service) AddComment(ctx context.Context, caseID, anchorText, body string) (store.Comment, error) {
	if err := validCaseID(caseID); err != nil {
		return store.Comment{}, err
	}
	if strings.TrimSpace(body) == "" {
		return store.Comment{}, validationError("comment body is required")
	}
	return s.session(ctx, caseID, "").AddComment(ctx, anchorText, body), nil
}

func (s *Service) ToggleComment(ctx context.Context, caseID, commentID string) (bool, error) {
	if err := validCaseID(caseID); err != nil {
		return false, err
	}
	return s.session(ctx, caseID, "").ToggleComment(ctx, commentID), nil
}

func (s *Service) SetTrackChanges(ctx context.Context, caseID string, enabled bool) error {
	if err := validCaseID(caseID); err != nil {
		return err
	}
	s.session(ctx, caseID, "").SetTrackChanges(enabled)
	return nil
}

func (s *Service) RecordChange(ctx context.Context, caseID, kind, text string) (store.ChangeEntry, bool, error) {
	if err := validCaseID(caseID); err != nil {
		return store.ChangeEntry{}, false, err
	}
	if kind != store.ChangeInsert && kind != store.ChangeDelete {
		return store.ChangeEntry{}, false, validationError("kind must be insert or delete")
	}
	entry, recorded := s.session(ctx, caseID, "").RecordChange(ctx, kind, text)
	return entry, recorded, nil
}

// SubscribeSaves relays collaborator save events for a case, for the
// event-stream endpoint.
func (s *Service) SubscribeSaves(ctx context.Context, caseID string, handler func(notify.SaveEvent)) (func(), error) {
	if err := validCaseID(caseID); err != nil {
		return nil, err
	}
	return s.notifier.Subscribe(ctx, caseID, handler)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Close tears down every live session.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, session := range s.sessions {
		session.Close()
	}
	s.sessions = make(map[string]*draft.Session)
}
