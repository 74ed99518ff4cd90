package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agentdeck/internal/status"
	"agentdeck/internal/transcript"
)

// Session is the backend's summary of one agent run.
type Session struct {
	ID           string    `json:"id"`
	ProjectPath  string    `json:"projectPath"`
	Title        string    `json:"title,omitempty"`
	LastActivity time.Time `json:"lastActivity"`
	Preview      string    `json:"preview,omitempty"`
}

// DisplayName is the human label for list rows: the editable title when one
// is set, otherwise the project folder.
func (s Session) DisplayName() string {
	if strings.TrimSpace(s.Title) != "" {
		return s.Title
	}
	if s.ProjectPath != "" {
		parts := strings.Split(strings.TrimRight(s.ProjectPath, "/"), "/")
		if base := parts[len(parts)-1]; base != "" {
			return base
		}
	}
	return s.ID
}

// Client talks to the session backend over HTTP. The live event stream is a
// separate concern (internal/stream); StreamURL builds its endpoint.
type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var payload struct {
		Sessions []Session `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &payload); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return payload.Sessions, nil
}

// History fetches the full historical entry list used to seed a view before
// the live stream attaches.
func (c *Client) History(ctx context.Context, sessionID string) ([]*transcript.Entry, error) {
	body, err := c.raw(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(sessionID)+"/history", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch history for %s: %w", sessionID, err)
	}
	entries, err := transcript.DecodeEntries(body)
	if err != nil {
		return nil, fmt.Errorf("history for %s: %w", sessionID, err)
	}
	return entries, nil
}

// SendMessage submits user input. The echoed entry arrives later on the live
// stream, not in this response.
func (c *Client) SendMessage(ctx context.Context, sessionID, projectPath, text string) error {
	req := map[string]string{"projectPath": projectPath, "text": text}
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID)+"/messages", req, nil); err != nil {
		return fmt.Errorf("send to %s: %w", sessionID, err)
	}
	return nil
}

// SessionStatuses performs the batched status poll covering every open view.
func (c *Client) SessionStatuses(ctx context.Context, ids []string) (map[string]status.SessionStatus, error) {
	req := map[string][]string{"ids": ids}
	var payload struct {
		Statuses map[string]status.SessionStatus `json:"statuses"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/sessions/status", req, &payload); err != nil {
		return nil, fmt.Errorf("poll statuses: %w", err)
	}
	return payload.Statuses, nil
}

// Resume terminates the waiting process state and resumes the session. When
// alwaysAllow is set the backend persists the allow-pattern into the
// project's permission list before resuming.
func (c *Client) Resume(ctx context.Context, sessionID, projectPath, pattern string, alwaysAllow bool) error {
	req := map[string]any{"projectPath": projectPath}
	if alwaysAllow && pattern != "" {
		req["pattern"] = pattern
		req["alwaysAllow"] = true
	}
	if err := c.do(ctx, http.MethodPost, "/api/sessions/"+url.PathEscape(sessionID)+"/resume", req, nil); err != nil {
		return fmt.Errorf("resume %s: %w", sessionID, err)
	}
	return nil
}

func (c *Client) DeleteSession(ctx context.Context, projectFolder, sessionID string) error {
	path := "/api/projects/" + url.PathEscape(projectFolder) + "/sessions/" + url.PathEscape(sessionID)
	if err := c.do(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

func (c *Client) RenameSession(ctx context.Context, sessionID, title string) error {
	req := map[string]string{"title": title}
	if err := c.do(ctx, http.MethodPatch, "/api/sessions/"+url.PathEscape(sessionID), req, nil); err != nil {
		return fmt.Errorf("rename session %s: %w", sessionID, err)
	}
	return nil
}

// StreamURL is the websocket endpoint for one session's live events.
func (c *Client) StreamURL(sessionID string) string {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws/sessions/" + url.PathEscape(sessionID) + "/events"
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	body, err := c.raw(ctx, method, path, in)
	if err != nil {
		return err
	}
	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) raw(ctx context.Context, method, path string, in any) ([]byte, error) {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, backendError(resp.StatusCode, body)
	}
	return body, nil
}

func backendError(code int, body []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("backend %d: %s", code, payload.Error)
	}
	return fmt.Errorf("backend %d", code)
}
