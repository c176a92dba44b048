package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"medichat/internal/domain"
	"medichat/internal/infra/config"
)

func newTestClient(t *testing.T, srv *httptest.Server, tokens *FileTokenSource) *Client {
	t.Helper()
	return NewClient(config.BackendConfig{
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
	}, tokens, nil)
}

func TestSendCreatesSessionAndParsesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Query != "what is diabetes" {
			t.Errorf("query = %q", req.Query)
		}
		if req.SessionID != nil {
			t.Errorf("expected null session_id for unsaved send, got %q", *req.SessionID)
		}
		json.NewEncoder(w).Encode(chatResponse{
			SessionID: "sess-42",
			Output:    "Diabetes is a chronic condition.",
			Intent:    "medical_query",
			Timestamp: "2026-08-30T12:00:00.123456",
		})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	res, err := c.Send(context.Background(), "", "what is diabetes")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if res.SessionID != "sess-42" {
		t.Errorf("session id = %q", res.SessionID)
	}
	if res.Message.Role != domain.RoleAssistant {
		t.Errorf("role = %q", res.Message.Role)
	}
	if res.Message.Content != "Diabetes is a chronic condition." {
		t.Errorf("content = %q", res.Message.Content)
	}
	if res.Intent != "medical_query" {
		t.Errorf("intent = %q", res.Intent)
	}
	if res.Message.Timestamp.IsZero() {
		t.Error("timestamp not parsed")
	}
}

func TestSendPassesSessionIDAndBearerToken(t *testing.T) {
	var gotAuth string
	var gotSession *string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		gotSession = req.SessionID
		json.NewEncoder(w).Encode(chatResponse{SessionID: "sess-1", Output: "ok"})
	}))
	defer srv.Close()

	dir := t.TempDir()
	path := dir + "/cred.json"
	writeCredential(t, path, "tok-abc", time.Now().Add(time.Hour))

	c := newTestClient(t, srv, NewFileTokenSource(path, nil))
	if _, err := c.Send(context.Background(), "sess-1", "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAuth != "Bearer tok-abc" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotSession == nil || *gotSession != "sess-1" {
		t.Errorf("session_id = %v", gotSession)
	}
}

func TestSendMapsAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Not authenticated"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	_, err := c.Send(context.Background(), "sess-1", "hello")
	if !errors.Is(err, domain.ErrAuthInvalid) {
		t.Fatalf("expected ErrAuthInvalid, got %v", err)
	}
}

func TestSendMapsServerFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	_, err := c.Send(context.Background(), "sess-1", "hello")
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestSendHonorsCancellation(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server detects the client disconnect and
		// cancels r.Context(); otherwise this handler never returns and
		// the deferred srv.Close() deadlocks.
		io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	_, err := c.Send(ctx, "sess-1", "hello")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFetchHistoryOrdersMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions/sess-9/history" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(historyResponse{Messages: []wireMessage{
			{Role: "user", Content: "hi", Timestamp: "2026-08-30T10:00:00Z"},
			{Role: "assistant", Content: "hello", Timestamp: "2026-08-30T10:00:02Z"},
		}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	msgs, err := c.FetchHistory(context.Background(), "sess-9")
	if err != nil {
		t.Fatalf("FetchHistory: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len = %d", len(msgs))
	}
	if msgs[0].Role != domain.RoleUser || msgs[1].Role != domain.RoleAssistant {
		t.Errorf("roles = %q, %q", msgs[0].Role, msgs[1].Role)
	}
	if !msgs[0].Timestamp.Before(msgs[1].Timestamp) {
		t.Error("timestamps out of order")
	}
}

func TestFetchHistoryMissingSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Session not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	_, err := c.FetchHistory(context.Background(), "nope")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListSessions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sessions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(sessionsResponse{Sessions: []wireSession{
			{SessionID: "s2", Title: "Chest pain follow-up", CreatedAt: "2026-08-30T11:00:00Z"},
			{SessionID: "s1", Title: "Allergy questions", CreatedAt: "2026-08-29T09:00:00Z"},
		}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, nil)
	sessions, err := c.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("len = %d", len(sessions))
	}
	if sessions[0].ID != "s2" || sessions[0].Title != "Chest pain follow-up" {
		t.Errorf("sessions[0] = %+v", sessions[0])
	}
}

func TestParseWireTimeVariants(t *testing.T) {
	for _, s := range []string{
		"2026-08-30T12:00:00Z",
		"2026-08-30T12:00:00.123456789Z",
		"2026-08-30T12:00:00.123456",
	} {
		if parseWireTime(s).IsZero() {
			t.Errorf("parseWireTime(%q) returned zero", s)
		}
	}
	if !parseWireTime("").IsZero() {
		t.Error("empty string should parse to zero time")
	}
	if !parseWireTime("garbage").IsZero() {
		t.Error("garbage should parse to zero time")
	}
}
