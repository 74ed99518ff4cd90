package approval

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrNoRequest is returned when an action is attempted with nothing pending.
	ErrNoRequest = errors.New("no pending permission request")
	// ErrAlreadyResolved is returned for a second action on a resolved request.
	ErrAlreadyResolved = errors.New("permission request already resolved")
	// ErrActionInFlight is returned while an earlier action is still running.
	ErrActionInFlight = errors.New("approval action already in flight")
)

// Request is a pending command-execution permission request. Only the most
// recent request on a session is actionable; a newer one supersedes.
type Request struct {
	SessionID   string
	ProjectPath string
	Command     string
	Pattern     string
	ReceivedAt  time.Time
}

// DerivePattern generalizes a command into an allow-list pattern suitable for
// persisting, e.g. "rm -rf build/" becomes "Bash(rm:*)". An empty or
// unparsable command yields an empty pattern, which callers treat as
// "approve once only".
func DerivePattern(command string) string {
	fields := strings.Fields(strings.TrimSpace(command))
	if len(fields) == 0 {
		return ""
	}
	tool := strings.Trim(fields[0], `"'`)
	tool = filepath.Base(tool)
	if tool == "" || tool == "." || tool == "/" {
		return ""
	}
	return fmt.Sprintf("Bash(%s:*)", tool)
}

type Phase int

const (
	PhaseNone Phase = iota
	PhasePending
	PhaseResolving
	PhaseResolved
)

// Workflow tracks the permission-approval lifecycle for one session view.
// It guards the resume action so concurrent double-submission issues exactly
// one backend call. The workflow itself performs no I/O; the view runs the
// resume request between Begin and Finish.
type Workflow struct {
	current  *Request
	phase    Phase
	persist  bool
	lastErr  error
	resolved Request
}

func NewWorkflow() *Workflow {
	return &Workflow{}
}

// Observe applies the latest polled signal. Re-observing the same request is
// a no-op so in-flight or resolved state survives poll cadence. A different
// command on the same session supersedes and re-arms the workflow.
func (w *Workflow) Observe(req Request) {
	if req.Pattern == "" {
		req.Pattern = DerivePattern(req.Command)
	}
	if w.current != nil && w.current.SessionID == req.SessionID && w.current.Command == req.Command {
		return
	}
	w.current = &req
	w.phase = PhasePending
	w.lastErr = nil
}

// ObserveCleared applies a poll that no longer reports a pending request.
// An in-flight action keeps its state; everything else returns to idle.
func (w *Workflow) ObserveCleared() {
	if w.phase == PhaseResolving {
		return
	}
	w.current = nil
	w.phase = PhaseNone
	w.lastErr = nil
}

// Begin claims the pending request for resolution. It returns the request to
// act on; a second call before Finish, or any call after a successful
// resolution, fails without touching the backend.
func (w *Workflow) Begin(alwaysAllow bool) (Request, error) {
	switch w.phase {
	case PhaseNone:
		return Request{}, ErrNoRequest
	case PhaseResolving:
		return Request{}, ErrActionInFlight
	case PhaseResolved:
		return Request{}, ErrAlreadyResolved
	}
	w.phase = PhaseResolving
	w.persist = alwaysAllow
	w.lastErr = nil
	return *w.current, nil
}

// Finish records the outcome of the resume call started by Begin. Success is
// terminal for this request; failure re-arms it so the user can retry.
func (w *Workflow) Finish(err error) {
	if w.phase != PhaseResolving {
		return
	}
	if err != nil {
		w.phase = PhasePending
		w.lastErr = err
		return
	}
	w.phase = PhaseResolved
	w.resolved = *w.current
	w.lastErr = nil
}

func (w *Workflow) Phase() Phase { return w.phase }

// Persisted reports whether the action claimed by Begin writes the
// allow-pattern before resuming.
func (w *Workflow) Persisted() bool { return w.persist }

// Pending returns the actionable request, if any.
func (w *Workflow) Pending() (Request, bool) {
	if w.current == nil || w.phase == PhaseNone {
		return Request{}, false
	}
	return *w.current, true
}

// Err returns the last resume failure, cleared on the next attempt or signal.
func (w *Workflow) Err() error { return w.lastErr }
