package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// eventServer serves one websocket session stream per accepted connection,
// replaying the frame script for the connection's ordinal.
func eventServer(t *testing.T, scripts [][]string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(conns.Add(1)) - 1
		if n >= len(scripts) {
			// Out of script: hold the connection open so the client
			// does not spin through reconnects.
			conn, err := websocket.Accept(w, r, nil)
			if err != nil {
				return
			}
			<-r.Context().Done()
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		}
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		ctx := r.Context()
		for _, frame := range scripts[n] {
			if err := conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
				return
			}
		}
		_ = conn.Close(websocket.StatusNormalClosure, "script done")
	}))
	return srv, &conns
}

func wsURL(srv *httptest.Server) string {
	return "ws://" + strings.TrimPrefix(srv.URL, "http://")
}

func collect(t *testing.T, sub *Subscription, want int) []Event {
	t.Helper()
	out := make([]Event, 0, want)
	deadline := time.After(5 * time.Second)
	for len(out) < want {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				t.Fatalf("events channel closed after %d of %d events", len(out), want)
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatalf("timed out after %d of %d events", len(out), want)
		}
	}
	return out
}

func TestSubscriptionDeliversEntries(t *testing.T) {
	srv, _ := eventServer(t, [][]string{{
		`{"type":"connected"}`,
		`{"type":"message","message":{"id":"m1","role":"user","text":"hi"}}`,
		`not json at all`,
		`{"type":"message","message":{"id":"m2","role":"assistant","text":"hello"}}`,
	}})
	defer srv.Close()

	sub := Subscribe(context.Background(), wsURL(srv), "s1", nil)
	defer sub.Close()

	evs := collect(t, sub, 3)
	if evs[0].Kind != Connected {
		t.Fatalf("first event should be connected, got %v", evs[0].Kind)
	}
	if evs[1].Entry == nil || evs[1].Entry.ID != "m1" {
		t.Fatalf("unexpected first entry: %+v", evs[1].Entry)
	}
	if evs[2].Entry == nil || evs[2].Entry.ID != "m2" {
		t.Fatalf("malformed frame should be skipped, got %+v", evs[2].Entry)
	}
}

func TestSubscriptionReconnects(t *testing.T) {
	srv, conns := eventServer(t, [][]string{
		{
			`{"type":"connected"}`,
			`{"type":"message","message":{"id":"m1","role":"user","text":"before drop"}}`,
		},
		{
			`{"type":"connected"}`,
			`{"type":"message","message":{"id":"m2","role":"assistant","text":"after drop"}}`,
		},
	})
	defer srv.Close()

	sub := Subscribe(context.Background(), wsURL(srv), "s1", nil)
	defer sub.Close()

	var entries []string
	var reconnects int
	deadline := time.After(10 * time.Second)
	for len(entries) < 2 {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				t.Fatalf("events channel closed early")
			}
			switch ev.Kind {
			case Entry:
				entries = append(entries, ev.Entry.ID)
			case Disconnected:
				reconnects++
			}
		case <-deadline:
			t.Fatalf("timed out; got entries=%v", entries)
		}
	}

	if entries[0] != "m1" || entries[1] != "m2" {
		t.Fatalf("expected entries across reconnect, got %v", entries)
	}
	if reconnects == 0 {
		t.Fatalf("expected a disconnect notice between connections")
	}
	if conns.Load() < 2 {
		t.Fatalf("expected a fresh subscription after the drop, saw %d connections", conns.Load())
	}
}

func TestCloseReleasesSubscription(t *testing.T) {
	srv, _ := eventServer(t, [][]string{{
		`{"type":"connected"}`,
	}})
	defer srv.Close()

	sub := Subscribe(context.Background(), wsURL(srv), "s1", nil)
	collect(t, sub, 1)
	sub.Close()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				return // channel closed: no further callbacks can fire
			}
		case <-deadline:
			t.Fatalf("events channel not closed after Close")
		}
	}
}
