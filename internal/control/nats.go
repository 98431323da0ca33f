// Package control listens for admin commands on a NATS subject.
package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"

	"github.com/120m4n/infovis/internal/logging"
	"github.com/120m4n/infovis/internal/metrics"
)

const (
	ActionReconnect = "reconnect"
	ActionPing      = "ping"
)

var ErrUnknownAction = errors.New("unknown action")

// Request is the body of an admin message.
type Request struct {
	Action string `json:"action"`
}

// Reply is sent back when the message carries a reply subject.
type Reply struct {
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// Store is the part of storage.Mongo the admin commands drive.
type Store interface {
	Reconnect(ctx context.Context) error
	HealthCheck(ctx context.Context) error
}

// Handler procesa los comandos del topic NATS
type Handler struct {
	subject string
	store   Store
	timeout time.Duration
}

// NewHandler crea un nuevo handler de comandos
func NewHandler(subject string, store Store, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Handler{subject: subject, store: store, timeout: timeout}
}

// Execute runs one admin request.
func (h *Handler) Execute(ctx context.Context, req Request) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	switch req.Action {
	case ActionReconnect:
		return h.store.Reconnect(ctx)
	case ActionPing:
		return h.store.HealthCheck(ctx)
	default:
		return fmt.Errorf("%w %q", ErrUnknownAction, req.Action)
	}
}

// MessageHandler es el callback para NATS
func (h *Handler) MessageHandler() nats.MsgHandler {
	return func(m *nats.Msg) {
		var req Request
		reply := Reply{}

		if err := json.Unmarshal(m.Data, &req); err != nil {
			metrics.AdminCommands.WithLabelValues("invalid", "error").Inc()
			logging.Warn().Err(err).Str("subject", m.Subject).Msg("Error unmarshalling admin command")
			reply.Error = "invalid request"
			h.respond(m, reply)
			return
		}
		reply.Action = req.Action

		if err := h.Execute(context.Background(), req); err != nil {
			metrics.AdminCommands.WithLabelValues(req.Action, "error").Inc()
			logging.Error().Err(err).Str("action", req.Action).Msg("Admin command failed")
			reply.Error = err.Error()
		} else {
			metrics.AdminCommands.WithLabelValues(req.Action, "ok").Inc()
			logging.Info().Str("action", req.Action).Msg("Admin command executed")
			reply.OK = true
		}
		h.respond(m, reply)
	}
}

func (h *Handler) respond(m *nats.Msg, reply Reply) {
	if m.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		logging.Error().Err(err).Msg("Error encoding admin reply")
		return
	}
	if err := m.Respond(data); err != nil {
		logging.Warn().Err(err).Str("reply", m.Reply).Msg("Error sending admin reply")
	}
}

// Subscribe se suscribe al topic NATS
func (h *Handler) Subscribe(nc *nats.Conn) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(h.subject, h.MessageHandler())
	if err != nil {
		return nil, fmt.Errorf("error subscribing to %s: %w", h.subject, err)
	}
	logging.Info().Str("subject", h.subject).Msg("Subscribed to admin subject")
	return sub, nil
}
