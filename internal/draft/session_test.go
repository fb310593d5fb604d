package draft

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"quill/api/internal/notify"
	"quill/api/internal/store"
)

type fakeDraftStore struct {
	mu     sync.Mutex
	loadFn func(ctx context.Context, caseID string) (*store.DraftState, error)
	saveFn func(ctx context.Context, caseID string, state *store.DraftState) error
	saved  []*store.DraftState
}

func (f *fakeDraftStore) Load(ctx context.Context, caseID string) (*store.DraftState, error) {
	if f.loadFn != nil {
		return f.loadFn(ctx, caseID)
	}
	return nil, nil
}

func (f *fakeDraftStore) Save(ctx context.Context, caseID string, state *store.DraftState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveFn != nil {
		if err := f.saveFn(ctx, caseID, state); err != nil {
			return err
		}
	}
	f.saved = append(f.saved, state)
	return nil
}

func (f *fakeDraftStore) Ping(context.Context) error { return nil }

func (f *fakeDraftStore) lastSaved() *store.DraftState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saved) == 0 {
		return nil
	}
	return f.saved[len(f.saved)-1]
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.SaveEvent
}

func (f *fakeNotifier) Publish(_ context.Context, event notify.SaveEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeNotifier) Subscribe(context.Context, string, func(notify.SaveEvent)) (func(), error) {
	return func() {}, nil
}

func (f *fakeNotifier) Close() error { return nil }

func (f *fakeNotifier) published() []notify.SaveEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]notify.SaveEvent, len(f.events))
	copy(out, f.events)
	return out
}

func newTestSession(t *testing.T, caseID, initial string, opts Options) *Session {
	t.Helper()
	if opts.Store == nil {
		opts.Store = &fakeDraftStore{}
	}
	s := NewSession(context.Background(), caseID, initial, opts)
	t.Cleanup(s.Close)
	return s
}

func TestOpenSeedsFromInitialContentWhenStoreEmpty(t *testing.T) {
	s := newTestSession(t, "case-1", "<p>Hello</p>", Options{})

	view := s.View()
	if view.Content != "<p>Hello</p>" {
		t.Errorf("content = %q, want <p>Hello</p>", view.Content)
	}
	if len(view.History) != 0 {
		t.Errorf("history = %d entries, want 0", len(view.History))
	}
	if view.LastSavedAt != nil {
		t.Errorf("lastSavedAt = %v, want nil", view.LastSavedAt)
	}
}

func TestOpenSanitizesInitialContent(t *testing.T) {
	s := newTestSession(t, "case-1", "Plain text draft", Options{})

	if got := s.View().Content; got != "<p>Plain text draft</p>" {
		t.Errorf("content = %q, want plain text wrapped", got)
	}
}

func TestOpenAdoptsStoredState(t *testing.T) {
	savedAt := time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
	fs := &fakeDraftStore{
		loadFn: func(context.Context, string) (*store.DraftState, error) {
			return &store.DraftState{
				Content:     "<p>Stored draft</p>",
				History:     []store.VersionSnapshot{{ID: "v1", Content: "<p>old</p>", Reason: store.ReasonManual}},
				LastSavedAt: &savedAt,
				Comments:    []store.Comment{{ID: "c1", AnchorText: "draft"}},
				ChangeLog:   []store.ChangeEntry{{ID: "ch1", Kind: store.ChangeInsert}},
			}, nil
		},
	}

	s := newTestSession(t, "case-1", "<p>Freshly generated</p>", Options{Store: fs})

	view := s.View()
	if view.Content != "<p>Stored draft</p>" {
		t.Errorf("content = %q, stored state must win over initial content", view.Content)
	}
	if len(view.History) != 1 || view.History[0].ID != "v1" {
		t.Errorf("history = %+v", view.History)
	}
	if view.LastSavedAt == nil || !view.LastSavedAt.Equal(savedAt) {
		t.Errorf("lastSavedAt = %v, want %v", view.LastSavedAt, savedAt)
	}
	if len(view.Comments) != 1 || len(view.ChangeLog) != 1 {
		t.Errorf("comments = %d, changeLog = %d", len(view.Comments), len(view.ChangeLog))
	}
}

func TestManualSaveWithoutRemoteSaver(t *testing.T) {
	fs := &fakeDraftStore{}
	s := newTestSession(t, "case-1", "<p>Hello</p>", Options{Store: fs})

	receipt := s.SaveManual(context.Background())
	if receipt.VersionID == "" {
		t.Error("expected a version id")
	}
	if receipt.RemoteError != "" {
		t.Errorf("remoteError = %q, want empty", receipt.RemoteError)
	}

	persisted := fs.lastSaved()
	if persisted == nil {
		t.Fatal("manual save must persist even without a remote saver")
	}
	if len(persisted.History) != 1 || persisted.History[0].Reason != store.ReasonManual {
		t.Errorf("persisted history = %+v", persisted.History)
	}
	if view := s.View(); view.LastSavedAt == nil {
		t.Error("lastSavedAt should be set after manual save")
	}
}

func TestManualSaveInvokesRemoteSaverWithCapturedContent(t *testing.T) {
	var got string
	saver := func(_ context.Context, content string) error {
		got = content
		return nil
	}
	s := newTestSession(t, "case-1", "<p>Hello</p>", Options{RemoteSaver: saver})

	s.UpdateContent(context.Background(), "<p>Amended</p>")
	s.SaveManual(context.Background())

	if got != "<p>Amended</p>" {
		t.Errorf("remote saver received %q, want content at invocation", got)
	}
}

func TestManualSaveRemoteFailureIsNonFatal(t *testing.T) {
	fs := &fakeDraftStore{}
	saver := func(context.Context, string) error {
		return errors.New("backend unavailable")
	}
	s := newTestSession(t, "case-1", "<p>Hello</p>", Options{Store: fs, RemoteSaver: saver})

	receipt := s.SaveManual(context.Background())
	if receipt.RemoteError == "" {
		t.Error("expected remote failure to be surfaced in the receipt")
	}

	persisted := fs.lastSaved()
	if persisted == nil || len(persisted.History) != 1 {
		t.Fatal("local persistence must happen despite remote failure")
	}

	// editing continues after the failed remote save
	if got := s.UpdateContent(context.Background(), "<p>Still editing</p>"); got != "<p>Still editing</p>" {
		t.Errorf("content = %q", got)
	}
}

func TestExternalContentDuplicateSuppressed(t *testing.T) {
	s := newTestSession(t, "case-1", "<p>Seed</p>", Options{})
	ctx := context.Background()

	if _, recorded := s.SetExternalContent(ctx, "<p>Seed</p>"); recorded {
		t.Error("content equal to the imported baseline must be ignored")
	}

	if _, recorded := s.SetExternalContent(ctx, "<p>Generated v2</p>"); !recorded {
		t.Fatal("expected first new generation to record an ai version")
	}
	if _, recorded := s.SetExternalContent(ctx, "<p>Generated v2</p>"); recorded {
		t.Error("expected repeated generation to be suppressed")
	}

	view := s.View()
	if len(view.History) != 1 || view.History[0].Reason != store.ReasonAI {
		t.Errorf("history = %+v, want exactly one ai version", view.History)
	}
	if view.Content != "<p>Generated v2</p>" {
		t.Errorf("content = %q", view.Content)
	}
}

func TestAutosaveRecordsOnceForOneChange(t *testing.T) {
	fn := &fakeNotifier{}
	s := newTestSession(t, "case-1", "<p>Hello</p>", Options{
		Notifier:         fn,
		AutosaveInterval: 20 * time.Millisecond,
	})

	s.UpdateContent(context.Background(), "<p>Hello, amended</p>")
	time.Sleep(150 * time.Millisecond)

	view := s.View()
	autoCount := 0
	for _, snapshot := range view.History {
		if snapshot.Reason == store.ReasonAuto {
			autoCount++
		}
	}
	if autoCount != 1 {
		t.Errorf("auto versions = %d, want exactly 1 for one change", autoCount)
	}
	if len(fn.published()) != 0 {
		t.Error("autosave must not broadcast")
	}
}

func TestAutosaveSkipsUnchangedContent(t *testing.T) {
	s := newTestSession(t, "case-1", "<p>Hello</p>", Options{
		AutosaveInterval: 20 * time.Millisecond,
	})

	time.Sleep(120 * time.Millisecond)

	if history := s.View().History; len(history) != 0 {
		t.Errorf("history = %+v, want none for unchanged content", history)
	}
}

func TestRestoreInstallsSnapshotContent(t *testing.T) {
	s := newTestSession(t, "case-1", "<p>First</p>", Options{})
	ctx := context.Background()

	receipt := s.SaveManual(ctx)
	s.UpdateContent(ctx, "<p>Second</p>")

	content, ok := s.Restore(ctx, receipt.VersionID)
	if !ok {
		t.Fatal("expected restore to succeed")
	}
	if content != "<p>First</p>" {
		t.Errorf("restored content = %q", content)
	}
	if got := s.View().Content; got != "<p>First</p>" {
		t.Errorf("current content = %q", got)
	}
}

func TestRestoreUnknownVersionIsNoop(t *testing.T) {
	s := newTestSession(t, "case-1", "<p>Hello</p>", Options{})
	ctx := context.Background()
	s.UpdateContent(ctx, "<p>Edited</p>")

	if _, ok := s.Restore(ctx, "ver_gone"); ok {
		t.Fatal("expected unknown version to report false")
	}
	if got := s.View().Content; got != "<p>Edited</p>" {
		t.Errorf("content = %q, must be unchanged", got)
	}
}

func TestPersistFailureIsSwallowed(t *testing.T) {
	failing := true
	fs := &fakeDraftStore{
		saveFn: func(context.Context, string, *store.DraftState) error {
			if failing {
				return errors.New("disk full")
			}
			return nil
		},
	}
	s := newTestSession(t, "case-1", "<p>Hello</p>", Options{Store: fs})
	ctx := context.Background()

	s.UpdateContent(ctx, "<p>Kept in memory</p>")
	view := s.View()
	if view.Content != "<p>Kept in memory</p>" {
		t.Errorf("content = %q, editing must continue in memory", view.Content)
	}
	if !view.PersistenceDegraded {
		t.Error("expected degraded persistence indicator")
	}

	failing = false
	s.UpdateContent(ctx, "<p>Recovered</p>")
	if s.View().PersistenceDegraded {
		t.Error("indicator should clear once persistence recovers")
	}
}

func TestTrackChangesThroughSession(t *testing.T) {
	fs := &fakeDraftStore{}
	s := newTestSession(t, "case-1", "<p>Hello</p>", Options{Store: fs})
	ctx := context.Background()

	if _, recorded := s.RecordChange(ctx, store.ChangeInsert, "new clause"); recorded {
		t.Error("expected no entry while tracking disabled")
	}

	s.SetTrackChanges(true)
	entry, recorded := s.RecordChange(ctx, store.ChangeInsert, "new clause")
	if !recorded {
		t.Fatal("expected entry while tracking enabled")
	}
	if entry.Kind != store.ChangeInsert {
		t.Errorf("entry = %+v", entry)
	}

	persisted := fs.lastSaved()
	if persisted == nil || len(persisted.ChangeLog) != 1 {
		t.Error("tracked change must be persisted")
	}
}

func TestCommentsThroughSession(t *testing.T) {
	fs := &fakeDraftStore{}
	s := newTestSession(t, "case-1", "<p>Hello</p>", Options{Store: fs})
	ctx := context.Background()

	comment := s.AddComment(ctx, "Hello", "greeting seems informal")
	if !s.ToggleComment(ctx, comment.ID) {
		t.Error("expected toggle to find comment")
	}
	if s.ToggleComment(ctx, "cmt_missing") {
		t.Error("unknown comment id must be a no-op")
	}

	persisted := fs.lastSaved()
	if persisted == nil || len(persisted.Comments) != 1 || !persisted.Comments[0].Resolved {
		t.Errorf("persisted comments = %+v", persisted)
	}
}

func TestCrossContextSaveNotification(t *testing.T) {
	mr := miniredis.RunT(t)
	notifierA, err := notify.NewRedisNotifier("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("notifier a: %v", err)
	}
	defer notifierA.Close()
	notifierB, err := notify.NewRedisNotifier("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("notifier b: %v", err)
	}
	defer notifierB.Close()

	// two contexts, same case, independent durable copies
	tabA := newTestSession(t, "case-44", "<p>Hello</p>", Options{Notifier: notifierA})
	tabB := newTestSession(t, "case-44", "<p>Hello</p>", Options{Notifier: notifierB})

	tabB.UpdateContent(context.Background(), "<p>Unsaved local work</p>")

	receipt := tabA.SaveManual(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for {
		if view := tabB.View(); view.CollaboratorSavedAt != nil {
			if !view.CollaboratorSavedAt.Equal(receipt.SavedAt) {
				t.Errorf("collaboratorSavedAt = %v, want %v", view.CollaboratorSavedAt, receipt.SavedAt)
			}
			if view.Content != "<p>Unsaved local work</p>" {
				t.Errorf("tab B content = %q, broadcast must not alter it", view.Content)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("tab B never observed the broadcast")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// the saving context filters its own broadcast
	if view := tabA.View(); view.CollaboratorSavedAt != nil {
		t.Errorf("tab A saw its own save as a collaborator save: %v", view.CollaboratorSavedAt)
	}
}

func TestHistoryBoundHoldsAcrossManySaves(t *testing.T) {
	s := newTestSession(t, "case-1", "<p>v0</p>", Options{})
	ctx := context.Background()

	for i := 1; i <= HistoryLimit+4; i++ {
		s.UpdateContent(ctx, fmt.Sprintf("<p>v%d</p>", i))
		s.SaveManual(ctx)
	}

	history := s.View().History
	if len(history) != HistoryLimit {
		t.Fatalf("history = %d entries, want %d", len(history), HistoryLimit)
	}
	if history[len(history)-1].Content != fmt.Sprintf("<p>v%d</p>", HistoryLimit+4) {
		t.Errorf("newest = %q", history[len(history)-1].Content)
	}
}
