// Package backend is the HTTP client for the remote assistant service. It
// owns no reasoning; it only speaks the service's request/response contract
// and maps failures onto domain sentinels.
package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"medichat/internal/domain"
	"medichat/internal/infra/config"
	"medichat/internal/infra/tracer"
)

// Client implements domain.ChatBackend over the assistant's HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
	tokens  *FileTokenSource // nil = unauthenticated
	logger  *slog.Logger
}

// NewClient creates a backend client with configured timeouts.
func NewClient(cfg config.BackendConfig, tokens *FileTokenSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		tokens: tokens,
		logger: logger,
	}
}

// --- wire types ---

type chatRequest struct {
	Query     string  `json:"query"`
	SessionID *string `json:"session_id"`
}

type chatResponse struct {
	SessionID string `json:"session_id"`
	Output    string `json:"output"`
	Intent    string `json:"intent,omitempty"`
	AudioURL  string `json:"audio_url,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

type historyResponse struct {
	Messages []wireMessage `json:"messages"`
}

type wireMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp,omitempty"`
}

type sessionsResponse struct {
	Sessions []wireSession `json:"sessions"`
}

type wireSession struct {
	SessionID string `json:"session_id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

// Send implements domain.ChatBackend. sessionID may be "" for an unsaved
// session; the backend creates one and returns its id.
func (c *Client) Send(ctx context.Context, sessionID, query string) (*domain.ChatResult, error) {
	ctx, span := tracer.StartSpan(ctx, "backend.send",
		trace.WithAttributes(tracer.StringAttr("session_id", sessionID)),
	)
	defer span.End()

	req := chatRequest{Query: query}
	if sessionID != "" {
		req.SessionID = &sessionID
	}
	body, err := json.Marshal(req)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := doJSONRequest(ctx, c.client, http.MethodPost, c.baseURL+"/chat", body, c.headers())
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var resp chatResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	msg := domain.AssistantMessage(resp.Output)
	msg.AudioURL = resp.AudioURL
	if ts := parseWireTime(resp.Timestamp); !ts.IsZero() {
		msg.Timestamp = ts
	}

	tracer.SetOK(span)
	c.logger.Debug("chat completed", "session_id", resp.SessionID, "intent", resp.Intent)

	return &domain.ChatResult{
		SessionID: resp.SessionID,
		Message:   msg,
		Intent:    resp.Intent,
	}, nil
}

// FetchHistory implements domain.ChatBackend.
func (c *Client) FetchHistory(ctx context.Context, sessionID string) ([]domain.Message, error) {
	ctx, span := tracer.StartSpan(ctx, "backend.fetch_history",
		trace.WithAttributes(tracer.StringAttr("session_id", sessionID)),
	)
	defer span.End()

	endpoint := fmt.Sprintf("%s/sessions/%s/history", c.baseURL, url.PathEscape(sessionID))
	respBody, err := doJSONRequest(ctx, c.client, http.MethodGet, endpoint, nil, c.headers())
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var resp historyResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("unmarshal history: %w", err)
	}

	msgs := make([]domain.Message, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		msgs = append(msgs, domain.Message{
			Role:      m.Role,
			Content:   m.Content,
			Raw:       m.Content,
			Timestamp: parseWireTime(m.Timestamp),
		})
	}

	span.SetAttributes(tracer.IntAttr("messages", len(msgs)))
	tracer.SetOK(span)
	return msgs, nil
}

// ListSessions implements domain.ChatBackend.
func (c *Client) ListSessions(ctx context.Context) ([]domain.Session, error) {
	ctx, span := tracer.StartSpan(ctx, "backend.list_sessions")
	defer span.End()

	respBody, err := doJSONRequest(ctx, c.client, http.MethodGet, c.baseURL+"/sessions", nil, c.headers())
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}

	var resp sessionsResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("unmarshal sessions: %w", err)
	}

	sessions := make([]domain.Session, 0, len(resp.Sessions))
	for _, s := range resp.Sessions {
		sessions = append(sessions, domain.Session{
			ID:        s.SessionID,
			Title:     s.Title,
			CreatedAt: parseWireTime(s.CreatedAt),
		})
	}

	tracer.SetOK(span)
	return sessions, nil
}

func (c *Client) headers() map[string]string {
	h := map[string]string{}
	if c.tokens != nil {
		if tok, ok := c.tokens.Token(); ok {
			h["Authorization"] = "Bearer " + tok
		}
	}
	return h
}

// parseWireTime accepts the RFC3339 variants the backend emits. Zero on
// failure; callers fall back to their own clock.
func parseWireTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
