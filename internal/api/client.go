// Package api is the HTTP transport adapter for the gollm backend. It
// exposes either a single decoded response or, for streaming chat, the live
// response body for the stream decoder to consume.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gollm/gollm-chat/internal/chat"
	"github.com/gollm/gollm-chat/internal/compare"
)

// Client talks to one gollm backend. The zero value is not usable; build
// one with NewClient.
type Client struct {
	baseURL string
	httpc   *http.Client
	streamc *http.Client
}

// NewClient returns a client for the backend at baseURL. timeout bounds
// non-streaming requests; streaming requests are bounded only by their
// context so long generations aren't cut off mid-reply.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: timeout},
		streamc: &http.Client{},
	}
}

// Chat submits a non-streaming chat request and returns the completion.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	req.Stream = false
	var resp ChatResponse
	if err := c.postJSON(ctx, "/chat", req, &resp); err != nil {
		return nil, err
	}
	if resp.ErrMsg != "" {
		return nil, fmt.Errorf("chat failed: %s", resp.ErrMsg)
	}
	return &resp, nil
}

// StreamChat submits a streaming chat request and returns the live event
// stream body. The caller owns the body and must close it; cancelling ctx
// tears the transfer down.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	req.Stream = true
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		defer resp.Body.Close()
		return nil, c.statusError(resp)
	}
	return resp.Body, nil
}

// StreamConversation adapts a session's history to a streaming chat call.
// It satisfies chat.Streamer.
func (c *Client) StreamConversation(ctx context.Context, provider, model, sessionID string, msgs []chat.Message) (io.ReadCloser, error) {
	return c.StreamChat(ctx, ChatRequest{
		Provider:  provider,
		Model:     model,
		SessionID: sessionID,
		Messages:  msgs,
	})
}

// ClearMemory asks the backend to discard server-held conversation memory
// for the session id.
func (c *Client) ClearMemory(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/memory/"+url.PathEscape(sessionID), nil, nil)
}

// ListTemplates returns the latest version of every template.
func (c *Client) ListTemplates(ctx context.Context) ([]Template, error) {
	var list []Template
	if err := c.do(ctx, http.MethodGet, "/template", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// GetTemplate fetches one template; version <= 0 resolves to the latest.
func (c *Client) GetTemplate(ctx context.Context, name string, version int) (*Template, error) {
	path := "/template/" + url.PathEscape(name)
	if version > 0 {
		path += "/" + strconv.Itoa(version)
	}
	var t Template
	if err := c.do(ctx, http.MethodGet, path, nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveTemplate creates or overwrites a template version.
func (c *Client) SaveTemplate(ctx context.Context, t Template) error {
	return c.postJSON(ctx, "/template", t, nil)
}

// DeleteTemplate removes one template version.
func (c *Client) DeleteTemplate(ctx context.Context, name string, version int) error {
	path := "/template/" + url.PathEscape(name) + "/" + strconv.Itoa(version)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// ExecuteVariant runs a single comparison variant on the backend and
// returns its answer, server-computed score and latency. It satisfies
// compare.Executor.
func (c *Client) ExecuteVariant(ctx context.Context, v compare.Variant, vars map[string]string) (compare.Outcome, error) {
	var out compare.Outcome
	if err := c.postJSON(ctx, "/optimizer/run", variantRequest{Variant: v, Vars: vars}, &out); err != nil {
		return compare.Outcome{}, err
	}
	return out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

// do issues one request and decodes a JSON response into out when non-nil.
// Non-2xx statuses become errors carrying the response body verbatim.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log.Debug().Str("method", method).Str("path", path).Msg("backend request")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return c.statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

// statusError surfaces a non-success response body verbatim.
func (c *Client) statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if len(raw) == 0 {
		return fmt.Errorf("backend returned %s", resp.Status)
	}
	return fmt.Errorf("backend returned %s: %s", resp.Status, bytes.TrimSpace(raw))
}
