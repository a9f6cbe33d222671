package http

import (
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/lojistavip/vipchat-server/internal/auth"
	"github.com/lojistavip/vipchat-server/internal/config"
	"github.com/lojistavip/vipchat-server/internal/store"
	"github.com/lojistavip/vipchat-server/internal/store/sqlite"
)

// createTestStore creates an in-memory SQLite store with schema applied.
func createTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

// createTestAuthService creates an auth service for testing.
func createTestAuthService(t *testing.T, st store.UserStore, jwtSecret string) *auth.Service {
	t.Helper()

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(jwtSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return auth.NewService(st, jwtConfig)
}

// startTestServer wires a full server over an in-memory store and
// returns it with its collaborators.
func startTestServer(t *testing.T) (*httptest.Server, *stdhttp.Server, store.Store, *auth.Service) {
	t.Helper()

	st := createTestStore(t)
	authService := createTestAuthService(t, st, "test-secret")

	disabledLogger := zerolog.New(nil)
	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = "test-secret"

	server := NewServer(st, authService, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return ts, server, st, authService
}
