package control

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/120m4n/infovis/internal/metrics"
)

type fakeStore struct {
	reconnects int
	pings      int
	err        error
}

func (s *fakeStore) Reconnect(context.Context) error {
	s.reconnects++
	return s.err
}

func (s *fakeStore) HealthCheck(context.Context) error {
	s.pings++
	return s.err
}

func TestExecute(t *testing.T) {
	store := &fakeStore{}
	h := NewHandler("infovis.admin", store, time.Second)

	if err := h.Execute(context.Background(), Request{Action: ActionReconnect}); err != nil {
		t.Fatalf("reconnect: %v", err)
	}
	if err := h.Execute(context.Background(), Request{Action: ActionPing}); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if store.reconnects != 1 || store.pings != 1 {
		t.Errorf("reconnects=%d pings=%d, want 1 and 1", store.reconnects, store.pings)
	}

	err := h.Execute(context.Background(), Request{Action: "drop"})
	if !errors.Is(err, ErrUnknownAction) {
		t.Errorf("expected ErrUnknownAction, got %v", err)
	}
}

func TestMessageHandlerReconnects(t *testing.T) {
	store := &fakeStore{}
	h := NewHandler("infovis.admin", store, 0)
	ok := metrics.AdminCommands.WithLabelValues(ActionReconnect, "ok")
	before := testutil.ToFloat64(ok)

	h.MessageHandler()(&nats.Msg{Subject: "infovis.admin", Data: []byte(`{"action":"reconnect"}`)})

	if store.reconnects != 1 {
		t.Errorf("reconnects = %d, want 1", store.reconnects)
	}
	if got := testutil.ToFloat64(ok) - before; got != 1 {
		t.Errorf("ok counter grew by %v, want 1", got)
	}
}

func TestMessageHandlerCountsFailures(t *testing.T) {
	store := &fakeStore{err: errors.New("no reachable servers")}
	h := NewHandler("infovis.admin", store, 0)
	failed := metrics.AdminCommands.WithLabelValues(ActionPing, "error")
	invalid := metrics.AdminCommands.WithLabelValues("invalid", "error")
	beforeFailed, beforeInvalid := testutil.ToFloat64(failed), testutil.ToFloat64(invalid)

	handle := h.MessageHandler()
	// The reply subject is set but the message is not bound to a
	// subscription, so the reply fails and is only logged.
	handle(&nats.Msg{Subject: "infovis.admin", Reply: "_INBOX.1", Data: []byte(`{"action":"ping"}`)})
	handle(&nats.Msg{Subject: "infovis.admin", Data: []byte(`not json`)})

	if got := testutil.ToFloat64(failed) - beforeFailed; got != 1 {
		t.Errorf("error counter grew by %v, want 1", got)
	}
	if got := testutil.ToFloat64(invalid) - beforeInvalid; got != 1 {
		t.Errorf("invalid counter grew by %v, want 1", got)
	}
	if store.reconnects != 0 {
		t.Error("invalid message must not trigger a reconnect")
	}
}
