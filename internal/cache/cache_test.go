package cache

import (
	"path/filepath"
	"testing"
	"time"

	"agentdeck/internal/api"
	"agentdeck/internal/transcript"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionsRoundTrip(t *testing.T) {
	s := openTestStore(t)

	in := []api.Session{
		{ID: "old", ProjectPath: "/work/a", Title: "older", LastActivity: time.Unix(1000, 0)},
		{ID: "new", ProjectPath: "/work/b", Title: "newer", LastActivity: time.Unix(2000, 0), Preview: "last line"},
	}
	if err := s.SaveSessions(in); err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}

	got, err := s.Sessions()
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(got))
	}
	if got[0].ID != "new" || got[1].ID != "old" {
		t.Fatalf("expected most recent first, got %s, %s", got[0].ID, got[1].ID)
	}
	if got[0].Preview != "last line" {
		t.Fatalf("preview lost: %q", got[0].Preview)
	}
	if !got[1].LastActivity.Equal(time.Unix(1000, 0)) {
		t.Fatalf("last activity lost: %v", got[1].LastActivity)
	}
}

func TestSaveSessionsReplacesList(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveSessions([]api.Session{{ID: "gone"}, {ID: "kept"}}); err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}
	if err := s.SaveSessions([]api.Session{{ID: "kept"}}); err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}

	got, err := s.Sessions()
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(got) != 1 || got[0].ID != "kept" {
		t.Fatalf("expected only kept session, got %+v", got)
	}
}

func TestTranscriptRoundTrip(t *testing.T) {
	s := openTestStore(t)

	entries := []*transcript.Entry{
		{ID: "m1", Role: transcript.RoleUser, Text: "hello"},
		{ID: "m2", Role: transcript.RoleAssistant, Tools: []*transcript.ToolInvocation{
			{Name: "Bash", State: transcript.ToolComplete, Result: "ok", HasResult: true},
		}},
	}
	if err := s.SaveTranscript("s1", entries); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	got, ok, err := s.Transcript("s1")
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if !ok {
		t.Fatal("expected cached transcript")
	}
	if len(got) != 2 || got[0].Text != "hello" {
		t.Fatalf("snapshot mismatch: %+v", got)
	}
	if len(got[1].Tools) != 1 || !got[1].Tools[0].HasResult {
		t.Fatalf("tool state lost: %+v", got[1].Tools)
	}
}

func TestTranscriptMissing(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.Transcript("nope")
	if err != nil {
		t.Fatalf("Transcript: %v", err)
	}
	if ok {
		t.Fatal("expected no cached transcript")
	}
}

func TestSaveTranscriptOverwrites(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveTranscript("s1", []*transcript.Entry{{ID: "a", Role: transcript.RoleUser}}); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}
	if err := s.SaveTranscript("s1", []*transcript.Entry{
		{ID: "a", Role: transcript.RoleUser},
		{ID: "b", Role: transcript.RoleAssistant, Text: "reply"},
	}); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	got, ok, err := s.Transcript("s1")
	if err != nil || !ok {
		t.Fatalf("Transcript: ok=%v err=%v", ok, err)
	}
	if len(got) != 2 || got[1].ID != "b" {
		t.Fatalf("expected newer snapshot, got %+v", got)
	}
}

func TestForget(t *testing.T) {
	s := openTestStore(t)

	if err := s.SaveSessions([]api.Session{{ID: "s1"}, {ID: "s2"}}); err != nil {
		t.Fatalf("SaveSessions: %v", err)
	}
	if err := s.SaveTranscript("s1", []*transcript.Entry{{ID: "a", Role: transcript.RoleUser}}); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	if err := s.Forget("s1"); err != nil {
		t.Fatalf("Forget: %v", err)
	}

	if _, ok, _ := s.Transcript("s1"); ok {
		t.Fatal("transcript should be gone")
	}
	got, err := s.Sessions()
	if err != nil {
		t.Fatalf("Sessions: %v", err)
	}
	if len(got) != 1 || got[0].ID != "s2" {
		t.Fatalf("expected only s2, got %+v", got)
	}
}
