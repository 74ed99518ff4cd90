package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"agentdeck/internal/transcript"
)

type Kind int

const (
	// Connected fires when the subscription (re)attaches. The backend also
	// sends it as the first frame of every fresh connection.
	Connected Kind = iota
	// Disconnected fires when the connection drops; the subscription keeps
	// retrying on its own. Diagnostic only.
	Disconnected
	// Entry carries one live transcript entry.
	Entry
)

type Event struct {
	SessionID string
	Kind      Kind
	Entry     *transcript.Entry
}

const (
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 8 * time.Second
)

// Subscription is a live event feed for one session. It owns a reader
// goroutine that dials, decodes frames, and transparently resubscribes when
// the connection is lost. A retry is a fresh subscription, never a replay;
// the reconciler's de-duplication absorbs any overlap.
type Subscription struct {
	sessionID string
	url       string
	events    chan Event
	cancel    context.CancelFunc
	connected atomic.Bool
	log       *slog.Logger
}

// Subscribe opens the feed and starts the reader. Close (or cancelling ctx)
// releases the connection and closes Events.
func Subscribe(ctx context.Context, wsURL, sessionID string, log *slog.Logger) *Subscription {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		sessionID: sessionID,
		url:       wsURL,
		events:    make(chan Event, 64),
		cancel:    cancel,
		log:       log,
	}
	go s.run(ctx)
	return s
}

func (s *Subscription) Events() <-chan Event { return s.events }

// IsConnected reports the diagnostic connection flag. Display only; never
// used for correctness.
func (s *Subscription) IsConnected() bool { return s.connected.Load() }

func (s *Subscription) Close() { s.cancel() }

func (s *Subscription) run(ctx context.Context) {
	defer close(s.events)

	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.Dial(ctx, s.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Debug("stream dial failed", "session_id", s.sessionID, "error", err)
			if !s.sleep(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}
		conn.SetReadLimit(4 << 20)
		backoff = initialBackoff

		err = s.readLoop(ctx, conn)
		_ = conn.Close(websocket.StatusNormalClosure, "resubscribing")
		s.connected.Store(false)
		if ctx.Err() != nil {
			return
		}

		s.log.Debug("stream lost, resubscribing", "session_id", s.sessionID, "error", err)
		if !s.emit(ctx, Event{SessionID: s.sessionID, Kind: Disconnected}) {
			return
		}
		if !s.sleep(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

func (s *Subscription) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		ev, err := transcript.DecodeEvent(data)
		if err != nil {
			// Malformed frames are dropped, never fatal to the stream.
			s.log.Debug("malformed stream frame dropped", "session_id", s.sessionID, "error", err)
			continue
		}

		switch ev.Type {
		case transcript.EventConnected:
			s.connected.Store(true)
			if !s.emit(ctx, Event{SessionID: s.sessionID, Kind: Connected}) {
				return errClosed
			}
		case transcript.EventMessage:
			if ev.Message == nil {
				continue
			}
			if !s.emit(ctx, Event{SessionID: s.sessionID, Kind: Entry, Entry: ev.Message}) {
				return errClosed
			}
		default:
			s.log.Debug("unknown stream event type dropped", "session_id", s.sessionID, "type", ev.Type)
		}
	}
}

var errClosed = errors.New("subscription closed")

func (s *Subscription) emit(ctx context.Context, ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Subscription) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func nextBackoff(d time.Duration) time.Duration {
	d *= 2
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
