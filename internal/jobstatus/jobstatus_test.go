// Copyright 2025 James Ross
package jobstatus

import (
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestCreateGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	j := New("abc12345", "https://example.test/a", "u1")
	if err := s.Create(j); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get("abc12345")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != Pending || got.Progress != 0 {
		t.Fatalf("unexpected initial state: %+v", got)
	}
}

func TestAdvanceStageMonotoneProgress(t *testing.T) {
	s := newTestStore(t)
	j := New("j1", "u", "u1")
	if err := s.Create(j); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AdvanceStage("j1", Queued, "queued", 5, "queued"); err != nil {
		t.Fatal(err)
	}
	got, err := s.AdvanceStage("j1", Fetching, "fetching", 25, "fetching article")
	if err != nil {
		t.Fatal(err)
	}
	if got.Progress != 25 {
		t.Fatalf("expected progress 25, got %d", got.Progress)
	}
	// A lower-progress stage transition must not move progress backwards.
	got, err = s.AdvanceStage("j1", Processing, "processing", 10, "should not regress")
	if err != nil {
		t.Fatal(err)
	}
	if got.Progress != 25 {
		t.Fatalf("expected progress to remain 25, got %d", got.Progress)
	}
}

func TestTerminalRejectsFurtherMutation(t *testing.T) {
	s := newTestStore(t)
	if err := s.Create(New("j1", "u", "u1")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetResult("j1", map[string]interface{}{"episode_id": "x"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AdvanceStage("j1", Fetching, "fetching", 50, "should fail"); err != ErrTerminal {
		t.Fatalf("expected ErrTerminal, got %v", err)
	}
}

func TestCancelOnlyFromCancellableStatus(t *testing.T) {
	s := newTestStore(t)
	if err := s.Create(New("j1", "u", "u1")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Cancel("j1", "user requested"); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get("j1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != Cancelled || got.CompletedAt == nil {
		t.Fatalf("expected cancelled terminal job, got %+v", got)
	}
	if _, err := s.Cancel("j1", "again"); err != ErrNotCancellable {
		t.Fatalf("expected ErrNotCancellable on already-terminal job, got %v", err)
	}
}

func TestTimeoutWarning(t *testing.T) {
	j := Job{Status: Fetching, StageStartTime: time.Now().Add(-2 * time.Minute)}
	if !TimeoutWarning(j, 60*time.Second) {
		t.Fatal("expected timeout warning for stage exceeding budget")
	}
	j2 := Job{Status: Completed, StageStartTime: time.Now().Add(-2 * time.Minute)}
	if TimeoutWarning(j2, 60*time.Second) {
		t.Fatal("terminal jobs should never surface a timeout warning")
	}
}
