package http

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/awayrelay/internal/auth"
	"github.com/vovakirdan/awayrelay/internal/config"
	"github.com/vovakirdan/awayrelay/internal/core"
	"github.com/vovakirdan/awayrelay/internal/responder"
	"github.com/vovakirdan/awayrelay/internal/store/sqlite"
)

type testEnv struct {
	ts    *httptest.Server
	ws    *WSHandler
	store *sqlite.SQLiteStore
	hub   *core.Hub
	auth  *auth.Service
}

// createTestStore creates an in-memory SQLite store with schema applied.
func createTestStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", func(db *sql.DB) error {
		_, err := db.Exec(sqlite.Schema)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// createTestAuthService creates an auth service for testing.
func createTestAuthService(st *sqlite.SQLiteStore, jwtSecret string) *auth.Service {
	return auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(jwtSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	})
}

func startTestServer(t *testing.T, r responder.Responder) *testEnv {
	t.Helper()

	logger := zerolog.Nop()
	st := createTestStore(t)
	authService := createTestAuthService(st, "testsecret")

	if r == nil {
		r = responder.Canned("away right now")
	}
	hub := core.NewHub(core.Options{
		Presence:         st,
		Messages:         st,
		Responder:        r,
		Logger:           &logger,
		PromptPrefix:     "reply to: ",
		ResponderTimeout: time.Second,
		StoreTimeout:     time.Second,
	})

	cfg := config.Default()
	cfg.JWTSecret = "testsecret"
	cfg.RateLimitPerMinute = 0

	server, wsHandler := NewServer(hub, authService, st, st, &cfg, &logger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		ts.Close()
		hub.Shutdown(context.Background())
	})

	return &testEnv{ts: ts, ws: wsHandler, store: st, hub: hub, auth: authService}
}

// registerAndLogin creates an account directly through the auth service and returns its token.
func (e *testEnv) registerAndLogin(t *testing.T, username string) string {
	t.Helper()

	ctx := context.Background()
	if _, err := e.auth.Register(ctx, username, "secret123", username+"@example.com"); err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	token, err := e.auth.Login(ctx, username, "secret123")
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *stdhttp.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := stdhttp.NewRequest(method, e.ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
