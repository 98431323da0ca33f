package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

func TestClientOptionsHostAndCredentials(t *testing.T) {
	opts := clientOptions(Options{
		Host:     "db.internal",
		Port:     27018,
		User:     "reader",
		Password: "secret",
		AuthDB:   "admin",
	})

	if len(opts.Hosts) != 1 || opts.Hosts[0] != "db.internal:27018" {
		t.Errorf("Expected host db.internal:27018, got %v", opts.Hosts)
	}
	if opts.Auth == nil {
		t.Fatal("Expected credentials to be set")
	}
	if opts.Auth.Username != "reader" || opts.Auth.AuthSource != "admin" {
		t.Errorf("Unexpected credentials %+v", opts.Auth)
	}
}

func TestClientOptionsFallbacks(t *testing.T) {
	tests := []struct {
		name string
		in   Options
	}{
		{"empty host", Options{Port: 27017}},
		{"port out of range", Options{Host: "db", Port: 70000}},
		{"zero port", Options{Host: "db"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := clientOptions(tt.in)
			if len(opts.Hosts) != 1 || opts.Hosts[0] != "localhost:27017" {
				t.Errorf("Expected default host, got %v", opts.Hosts)
			}
		})
	}
}

func TestClientOptionsIncompleteCredentialsIgnored(t *testing.T) {
	opts := clientOptions(Options{Host: "db", Port: 27017, User: "reader", AuthDB: "admin"})
	if opts.Auth != nil {
		t.Errorf("Expected no credentials without a password, got %+v", opts.Auth)
	}
}

func TestClientOptionsURIWins(t *testing.T) {
	opts := clientOptions(Options{URI: "mongodb://mongo-a:27100,mongo-b:27100", Host: "ignored", Port: 1})
	if len(opts.Hosts) != 2 || opts.Hosts[0] != "mongo-a:27100" {
		t.Errorf("Expected hosts from URI, got %v", opts.Hosts)
	}
}

// The driver connects lazily, so the state machine can be exercised without
// a running server.
func TestConnectionStateMachine(t *testing.T) {
	ctx := context.Background()
	m := NewMongo(Options{Host: "localhost", Port: 27017, Database: "infovis", ServerSelectionTimeout: 100 * time.Millisecond})

	if m.State() != Disconnected {
		t.Fatalf("Expected new store to be disconnected, got %s", m.State())
	}
	if err := m.Disconnect(ctx); err != nil {
		t.Errorf("Disconnect on a disconnected store should be a no-op: %v", err)
	}
	if err := m.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if m.State() != Connected {
		t.Errorf("Expected connected, got %s", m.State())
	}
	if err := m.Reconnect(ctx); err != nil {
		t.Fatalf("Reconnect failed: %v", err)
	}
	if m.State() != Connected {
		t.Errorf("Expected connected after reconnect, got %s", m.State())
	}
	if err := m.Close(ctx); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if m.State() != Disconnected {
		t.Errorf("Expected disconnected after close, got %s", m.State())
	}
}

func TestQueryReconnectsLazilyAndPropagatesErrors(t *testing.T) {
	ctx := context.Background()
	// Nothing listens on port 1; the query must fail, not hang or panic.
	m := NewMongo(Options{Host: "127.0.0.1", Port: 1, Database: "infovis", ServerSelectionTimeout: 200 * time.Millisecond})
	defer m.Close(ctx)

	_, err := m.Count(ctx, "accidents", bson.D{})
	if err == nil {
		t.Fatal("Expected an error from an unreachable server")
	}
	if errors.Is(err, ErrNotFound) {
		t.Errorf("Connectivity failure must not look like not-found: %v", err)
	}
	if m.State() != Connected {
		t.Errorf("Expected the client to be created on first use, got %s", m.State())
	}
}
