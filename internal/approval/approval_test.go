package approval

import (
	"errors"
	"testing"
)

func TestDerivePattern(t *testing.T) {
	cases := []struct {
		command string
		want    string
	}{
		{"rm -rf build/", "Bash(rm:*)"},
		{"git push origin main", "Bash(git:*)"},
		{"/usr/bin/make -j8", "Bash(make:*)"},
		{"  npm   test  ", "Bash(npm:*)"},
		{`"cargo" build`, "Bash(cargo:*)"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := DerivePattern(tc.command); got != tc.want {
			t.Fatalf("DerivePattern(%q) = %q, want %q", tc.command, got, tc.want)
		}
	}
}

func pendingWorkflow() *Workflow {
	w := NewWorkflow()
	w.Observe(Request{SessionID: "s1", ProjectPath: "/proj", Command: "rm -rf build/"})
	return w
}

func TestObserveDerivesPattern(t *testing.T) {
	w := pendingWorkflow()
	req, ok := w.Pending()
	if !ok {
		t.Fatalf("expected pending request")
	}
	if req.Pattern != "Bash(rm:*)" {
		t.Fatalf("expected derived pattern, got %q", req.Pattern)
	}
}

func TestResolveExactlyOnce(t *testing.T) {
	w := pendingWorkflow()

	req, err := w.Begin(true)
	if err != nil {
		t.Fatalf("first begin failed: %v", err)
	}
	if req.Command != "rm -rf build/" {
		t.Fatalf("unexpected claimed request: %+v", req)
	}

	// Second click while the resume call is still running.
	if _, err := w.Begin(true); !errors.Is(err, ErrActionInFlight) {
		t.Fatalf("expected in-flight error, got %v", err)
	}

	w.Finish(nil)
	if w.Phase() != PhaseResolved {
		t.Fatalf("expected resolved phase, got %v", w.Phase())
	}

	// Click after resolution.
	if _, err := w.Begin(false); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected already-resolved error, got %v", err)
	}
}

func TestFailureLeavesRetryable(t *testing.T) {
	w := pendingWorkflow()

	if _, err := w.Begin(false); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	resumeErr := errors.New("process already gone")
	w.Finish(resumeErr)

	if w.Phase() != PhasePending {
		t.Fatalf("failed resume must stay actionable, got phase %v", w.Phase())
	}
	if !errors.Is(w.Err(), resumeErr) {
		t.Fatalf("expected surfaced error, got %v", w.Err())
	}

	if _, err := w.Begin(false); err != nil {
		t.Fatalf("retry after failure rejected: %v", err)
	}
}

func TestReobservingSameSignalIsIdempotent(t *testing.T) {
	w := pendingWorkflow()
	if _, err := w.Begin(true); err != nil {
		t.Fatalf("begin failed: %v", err)
	}

	// The next poll reports the same pending command while the resume call
	// is in flight; phase must be untouched.
	w.Observe(Request{SessionID: "s1", Command: "rm -rf build/"})
	if w.Phase() != PhaseResolving {
		t.Fatalf("re-observed signal disturbed phase: %v", w.Phase())
	}
}

func TestNewerRequestSupersedes(t *testing.T) {
	w := pendingWorkflow()
	w.Observe(Request{SessionID: "s1", Command: "curl https://example.com"})

	req, ok := w.Pending()
	if !ok || req.Command != "curl https://example.com" {
		t.Fatalf("expected superseding request, got %+v ok=%v", req, ok)
	}
	if req.Pattern != "Bash(curl:*)" {
		t.Fatalf("pattern not re-derived: %q", req.Pattern)
	}
}

func TestClearedSignalResets(t *testing.T) {
	w := pendingWorkflow()
	w.ObserveCleared()
	if _, ok := w.Pending(); ok {
		t.Fatalf("expected no pending request after clear")
	}
	if _, err := w.Begin(false); !errors.Is(err, ErrNoRequest) {
		t.Fatalf("expected no-request error, got %v", err)
	}
}

func TestClearedSignalKeepsInFlightAction(t *testing.T) {
	w := pendingWorkflow()
	if _, err := w.Begin(true); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	w.ObserveCleared()
	if w.Phase() != PhaseResolving {
		t.Fatalf("clear during in-flight action must not reset, got %v", w.Phase())
	}
	w.Finish(nil)
	if w.Phase() != PhaseResolved {
		t.Fatalf("expected resolved after finish, got %v", w.Phase())
	}
}
