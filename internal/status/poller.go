package status

import (
	"sort"
	"time"
)

// State is the coarse discrete status of one session.
type State string

const (
	Idle          State = "idle"
	Working       State = "working"
	Waiting       State = "waiting"
	NeedsApproval State = "needs-approval"
)

// Normalize maps backend state strings onto the known set. Unknown values
// degrade to Waiting rather than erroring: the process is alive but the
// panel cannot tell what it wants.
func Normalize(raw string) State {
	switch State(raw) {
	case Idle, Working, Waiting, NeedsApproval:
		return State(raw)
	}
	return Waiting
}

// SessionStatus is one session's polled signal. Command and Pattern are set
// only while the session is blocked on a permission decision.
type SessionStatus struct {
	State   State  `json:"state"`
	Command string `json:"command,omitempty"`
	Pattern string `json:"pattern,omitempty"`
}

// Poller owns the status state shared by every open session view. Views
// register interest and read statuses; only the poll cycle writes them. The
// poller performs no I/O itself: the UI runs the batched request between
// BeginPoll and FinishPoll, which guarantees at most one outstanding request
// regardless of how many views are open.
type Poller struct {
	interest map[string]int
	statuses map[string]SessionStatus
	localAt  map[string]time.Time
	inFlight bool
}

func NewPoller() *Poller {
	return &Poller{
		interest: make(map[string]int),
		statuses: make(map[string]SessionStatus),
		localAt:  make(map[string]time.Time),
	}
}

// Register adds a view's interest in a session. Interests are refcounted so
// two views over the same session keep it polled until both close.
func (p *Poller) Register(sessionID string) {
	if sessionID == "" {
		return
	}
	p.interest[sessionID]++
}

// Unregister drops one interest. The last drop also forgets the cached
// status so a deleted session does not linger.
func (p *Poller) Unregister(sessionID string) {
	n, ok := p.interest[sessionID]
	if !ok {
		return
	}
	if n <= 1 {
		delete(p.interest, sessionID)
		delete(p.statuses, sessionID)
		delete(p.localAt, sessionID)
		return
	}
	p.interest[sessionID] = n - 1
}

// IDs returns every session the next batched poll must cover, sorted for
// stable request bodies.
func (p *Poller) IDs() []string {
	out := make([]string, 0, len(p.interest))
	for id := range p.interest {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// BeginPoll claims the poll slot. It returns false when a poll is already
// outstanding or no view is registered.
func (p *Poller) BeginPoll(now time.Time) ([]string, time.Time, bool) {
	if p.inFlight || len(p.interest) == 0 {
		return nil, time.Time{}, false
	}
	p.inFlight = true
	return p.IDs(), now, true
}

// FinishPoll applies a completed batch. Results lose to any local optimistic
// transition recorded after the poll started (last-writer-wins by arrival);
// otherwise they replace the cached status and clear the local mark. A failed
// poll keeps previous statuses untouched.
func (p *Poller) FinishPoll(started time.Time, results map[string]SessionStatus, err error) {
	p.inFlight = false
	if err != nil {
		return
	}
	for id, st := range results {
		if _, watched := p.interest[id]; !watched {
			continue
		}
		if localAt, ok := p.localAt[id]; ok && localAt.After(started) {
			continue
		}
		st.State = Normalize(string(st.State))
		p.statuses[id] = st
		delete(p.localAt, id)
	}
}

// MarkLocal records an optimistic transition (e.g. Working right after a
// send, or clearing NeedsApproval right after a resume) that outranks any
// in-flight poll predating it.
func (p *Poller) MarkLocal(sessionID string, state State, now time.Time) {
	if _, watched := p.interest[sessionID]; !watched {
		return
	}
	p.statuses[sessionID] = SessionStatus{State: state}
	p.localAt[sessionID] = now
}

// ClearLocal withdraws an optimistic transition that did not happen, e.g.
// a send that failed. No-op once a poll has confirmed the state; otherwise
// the session reads as unknown until the next poll.
func (p *Poller) ClearLocal(sessionID string) {
	if _, ok := p.localAt[sessionID]; !ok {
		return
	}
	delete(p.localAt, sessionID)
	delete(p.statuses, sessionID)
}

// Status returns the current signal for a session. ok is false until the
// first poll or local mark lands.
func (p *Poller) Status(sessionID string) (SessionStatus, bool) {
	st, ok := p.statuses[sessionID]
	return st, ok
}

// InFlight reports whether a batched request is outstanding.
func (p *Poller) InFlight() bool { return p.inFlight }
