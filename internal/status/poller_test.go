package status

import (
	"reflect"
	"testing"
	"time"
)

func TestSingleOutstandingBatch(t *testing.T) {
	p := NewPoller()
	p.Register("s1")
	p.Register("s2")
	p.Register("s3")

	now := time.Now()
	ids, started, ok := p.BeginPoll(now)
	if !ok {
		t.Fatalf("expected poll slot to be free")
	}
	if want := []string{"s1", "s2", "s3"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("batch must cover all registered ids: got %v want %v", ids, want)
	}

	if _, _, ok := p.BeginPoll(now.Add(time.Second)); ok {
		t.Fatalf("second poll must not start while one is outstanding")
	}

	p.FinishPoll(started, map[string]SessionStatus{"s1": {State: Working}}, nil)
	if _, _, ok := p.BeginPoll(now.Add(2 * time.Second)); !ok {
		t.Fatalf("poll slot must free after finish")
	}
}

func TestNoPollWithoutInterest(t *testing.T) {
	p := NewPoller()
	if _, _, ok := p.BeginPoll(time.Now()); ok {
		t.Fatalf("poll must not start with no registered sessions")
	}
}

func TestLocalTransitionOutranksInFlightPoll(t *testing.T) {
	p := NewPoller()
	p.Register("s1")

	base := time.Now()
	_, started, ok := p.BeginPoll(base)
	if !ok {
		t.Fatalf("begin poll failed")
	}

	// User resumes the session while the poll is on the wire; the stale
	// response still says needs-approval.
	p.MarkLocal("s1", Working, base.Add(time.Second))
	p.FinishPoll(started, map[string]SessionStatus{
		"s1": {State: NeedsApproval, Command: "rm -rf build/"},
	}, nil)

	st, _ := p.Status("s1")
	if st.State != Working {
		t.Fatalf("stale poll overwrote local transition: %v", st.State)
	}

	// The next poll starts after the local mark, so its answer wins again.
	_, started2, _ := p.BeginPoll(base.Add(2 * time.Second))
	p.FinishPoll(started2, map[string]SessionStatus{"s1": {State: Working}}, nil)
	st, _ = p.Status("s1")
	if st.State != Working {
		t.Fatalf("confirming poll rejected: %v", st.State)
	}
	_, started3, _ := p.BeginPoll(base.Add(3 * time.Second))
	p.FinishPoll(started3, map[string]SessionStatus{"s1": {State: Idle}}, nil)
	st, _ = p.Status("s1")
	if st.State != Idle {
		t.Fatalf("later poll must win once local mark is consumed: %v", st.State)
	}
}

func TestFailedPollKeepsStatuses(t *testing.T) {
	p := NewPoller()
	p.Register("s1")

	_, started, _ := p.BeginPoll(time.Now())
	p.FinishPoll(started, map[string]SessionStatus{"s1": {State: Working}}, nil)

	_, started2, _ := p.BeginPoll(time.Now())
	p.FinishPoll(started2, nil, errTimeout{})

	st, ok := p.Status("s1")
	if !ok || st.State != Working {
		t.Fatalf("failed poll must keep last status, got %v ok=%v", st.State, ok)
	}
	if p.InFlight() {
		t.Fatalf("failed poll must still free the slot")
	}
}

type errTimeout struct{}

func (errTimeout) Error() string { return "poll timed out" }

func TestClearLocalWithdrawsOptimisticMark(t *testing.T) {
	p := NewPoller()
	p.Register("s1")

	p.MarkLocal("s1", Working, time.Now())
	p.ClearLocal("s1")
	if _, ok := p.Status("s1"); ok {
		t.Fatalf("withdrawn mark must leave the status unknown")
	}

	// Once a poll confirms the state, the mark is consumed and a withdrawal
	// must not erase polled truth.
	_, started, _ := p.BeginPoll(time.Now())
	p.FinishPoll(started, map[string]SessionStatus{"s1": {State: Working}}, nil)
	p.ClearLocal("s1")
	st, ok := p.Status("s1")
	if !ok || st.State != Working {
		t.Fatalf("poll-confirmed status must survive, got %v ok=%v", st.State, ok)
	}
}

func TestUnregisterForgetsSession(t *testing.T) {
	p := NewPoller()
	p.Register("s1")
	p.Register("s1") // second view on the same session

	_, started, _ := p.BeginPoll(time.Now())
	p.FinishPoll(started, map[string]SessionStatus{"s1": {State: Idle}}, nil)

	p.Unregister("s1")
	if _, ok := p.Status("s1"); !ok {
		t.Fatalf("status must survive while one view remains")
	}
	p.Unregister("s1")
	if _, ok := p.Status("s1"); ok {
		t.Fatalf("status must be forgotten after last view closes")
	}
	if ids := p.IDs(); len(ids) != 0 {
		t.Fatalf("expected no polled ids, got %v", ids)
	}
}

func TestNormalizeUnknownState(t *testing.T) {
	cases := map[string]State{
		"idle":           Idle,
		"working":        Working,
		"needs-approval": NeedsApproval,
		"compacting":     Waiting,
		"":               Waiting,
	}
	for raw, want := range cases {
		if got := Normalize(raw); got != want {
			t.Fatalf("Normalize(%q) = %v, want %v", raw, got, want)
		}
	}
}
