package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lojistavip/vipchat-server/internal/chat"
	"github.com/lojistavip/vipchat-server/internal/store"
)

func doJSON(t *testing.T, handler http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != "" {
		reqBody = bytes.NewBufferString(body)
	} else {
		reqBody = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func TestRegisterLoginAndGuest(t *testing.T) {
	_, server, _, _ := startTestServer(t)

	resp := doJSON(t, server.Handler, http.MethodPost, "/api/register", "", `{"username":"alice","password":"password123"}`)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	var reg AuthResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &reg); err != nil {
		t.Fatalf("unmarshal register response: %v", err)
	}
	if reg.Token == "" || reg.UserID == "" || reg.Username != "alice" {
		t.Fatalf("unexpected register response: %+v", reg)
	}

	// Duplicate username conflicts.
	resp = doJSON(t, server.Handler, http.MethodPost, "/api/register", "", `{"username":"alice","password":"password123"}`)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.Code)
	}

	resp = doJSON(t, server.Handler, http.MethodPost, "/api/login", "", `{"username":"alice","password":"password123"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var login AuthResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &login); err != nil {
		t.Fatalf("unmarshal login response: %v", err)
	}
	if login.UserID != reg.UserID {
		t.Errorf("expected user id %q, got %q", reg.UserID, login.UserID)
	}

	resp = doJSON(t, server.Handler, http.MethodPost, "/api/login", "", `{"username":"alice","password":"wrong-password"}`)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}

	resp = doJSON(t, server.Handler, http.MethodPost, "/api/guest", "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var guest AuthResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &guest); err != nil {
		t.Fatalf("unmarshal guest response: %v", err)
	}
	if guest.Token == "" || guest.UserID == "" {
		t.Fatalf("unexpected guest response: %+v", guest)
	}
}

func TestUserSearchExcludesSelfAndRequiresAuth(t *testing.T) {
	_, server, _, authService := startTestServer(t)
	ctx := context.Background()

	alice, aliceToken, err := authService.Register(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("register alice: %v", err)
	}
	if _, _, err := authService.Register(ctx, "alfred", "password123"); err != nil {
		t.Fatalf("register alfred: %v", err)
	}

	resp := doJSON(t, server.Handler, http.MethodGet, "/api/users?q=al", "", "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.Code)
	}

	resp = doJSON(t, server.Handler, http.MethodGet, "/api/users?q=al", aliceToken, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var users []UserResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &users); err != nil {
		t.Fatalf("unmarshal users: %v", err)
	}
	if len(users) != 1 || users[0].Username != "alfred" {
		t.Fatalf("expected only alfred (self excluded), got %+v", users)
	}
	if users[0].ID == alice.ID {
		t.Fatalf("self leaked into directory results")
	}
}

func TestHistoryEndpoints(t *testing.T) {
	_, server, st, authService := startTestServer(t)
	ctx := context.Background()

	alice, aliceToken, err := authService.Register(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("register alice: %v", err)
	}
	bob, _, err := authService.Register(ctx, "bob", "password123")
	if err != nil {
		t.Fatalf("register bob: %v", err)
	}

	directAB, err := chat.DirectChannel(alice.ID, bob.ID)
	if err != nil {
		t.Fatalf("DirectChannel: %v", err)
	}

	seed := []store.Message{
		{ChannelID: chat.BroadcastChannel, SenderID: alice.ID, Text: "hello all"},
		{ChannelID: chat.BroadcastChannel, SenderID: bob.ID, Text: "hi"},
		{ChannelID: directAB, SenderID: alice.ID, Text: "psst bob"},
	}
	for i := range seed {
		if _, err := st.Append(ctx, &seed[i]); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	// Community history with per-viewer is_mine annotations.
	resp := doJSON(t, server.Handler, http.MethodGet, "/api/channels/community/messages", aliceToken, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var community []MessageResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &community); err != nil {
		t.Fatalf("unmarshal community history: %v", err)
	}
	if len(community) != 2 {
		t.Fatalf("expected 2 community messages, got %d", len(community))
	}
	if !community[0].IsMine || community[1].IsMine {
		t.Fatalf("unexpected is_mine annotations: %+v", community)
	}

	// Direct history is isolated to the sorted-pair channel.
	resp = doJSON(t, server.Handler, http.MethodGet, "/api/channels/direct/"+bob.ID+"/messages", aliceToken, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var direct []MessageResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &direct); err != nil {
		t.Fatalf("unmarshal direct history: %v", err)
	}
	if len(direct) != 1 || direct[0].Text != "psst bob" || direct[0].ChannelID != directAB {
		t.Fatalf("unexpected direct history: %+v", direct)
	}

	// Self-addressed direct history is rejected.
	resp = doJSON(t, server.Handler, http.MethodGet, "/api/channels/direct/"+alice.ID+"/messages", aliceToken, "")
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for self peer, got %d", resp.Code)
	}
}
