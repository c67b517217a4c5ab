package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gollm/gollm-chat/internal/chat"
	"github.com/gollm/gollm-chat/internal/compare"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second)
}

func TestChat(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Stream {
			t.Error("non-streaming call must not set stream")
		}
		if req.Provider != "ollama" || req.Model != "llama3" {
			t.Errorf("provider/model = %s/%s", req.Provider, req.Model)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"text":  "hi there",
			"usage": map[string]int{"PromptTokens": 12, "CompletionTokens": 7},
		})
	}))

	resp, err := c.Chat(context.Background(), ChatRequest{
		Provider: "ollama",
		Model:    "llama3",
		Messages: []chat.Message{{Role: chat.RoleUser, Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Text != "hi there" {
		t.Errorf("text = %q", resp.Text)
	}
	if resp.Usage.PromptTokens != 12 || resp.Usage.CompletionTokens != 7 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestChatErrorEnvelope(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"error": "provider not configured"})
	}))

	_, err := c.Chat(context.Background(), ChatRequest{Provider: "x", Model: "y"})
	if err == nil || !strings.Contains(err.Error(), "provider not configured") {
		t.Errorf("err = %v, want the backend error message", err)
	}
}

func TestStatusErrorCarriesBody(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "template qa not found", http.StatusNotFound)
	}))

	_, err := c.GetTemplate(context.Background(), "qa", 0)
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "template qa not found") {
		t.Errorf("err %q does not carry the response body", err)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("err %q does not carry the status", err)
	}
}

func TestStreamChatReturnsLiveBody(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if !req.Stream {
			t.Error("streaming call must set stream")
		}
		if got := r.Header.Get("Accept"); got != "text/event-stream" {
			t.Errorf("Accept = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: Hello\n\ndata: world\n\nevent: done\n\n")
	}))

	body, err := c.StreamChat(context.Background(), ChatRequest{Provider: "ollama", Model: "llama3"})
	if err != nil {
		t.Fatalf("StreamChat failed: %v", err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("reading stream failed: %v", err)
	}
	if got := string(raw); got != "data: Hello\n\ndata: world\n\nevent: done\n\n" {
		t.Errorf("stream body = %q", got)
	}
}

func TestStreamChatNonSuccessStatus(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))

	_, err := c.StreamChat(context.Background(), ChatRequest{Provider: "ollama", Model: "llama3"})
	if err == nil || !strings.Contains(err.Error(), "model not loaded") {
		t.Errorf("err = %v, want the body verbatim", err)
	}
}

func TestClearMemoryEscapesSessionID(t *testing.T) {
	gotPath := make(chan string, 1)
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		gotPath <- r.URL.EscapedPath()
	}))

	if err := c.ClearMemory(context.Background(), "abc/123"); err != nil {
		t.Fatalf("ClearMemory failed: %v", err)
	}
	if got := <-gotPath; got != "/memory/abc%2F123" {
		t.Errorf("path = %q", got)
	}
}

func TestTemplateRoutes(t *testing.T) {
	type call struct{ method, path string }
	var mu sync.Mutex
	var calls []call
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, call{r.Method, r.URL.Path})
		mu.Unlock()
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/template":
			json.NewEncoder(w).Encode([]Template{{Name: "qa", Version: 3}})
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(Template{Name: "qa", Version: 2, Prompt: "Answer {{question}}"})
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	ctx := context.Background()

	list, err := c.ListTemplates(ctx)
	if err != nil {
		t.Fatalf("ListTemplates failed: %v", err)
	}
	if len(list) != 1 || list[0].Name != "qa" {
		t.Errorf("list = %+v", list)
	}

	tpl, err := c.GetTemplate(ctx, "qa", 2)
	if err != nil {
		t.Fatalf("GetTemplate failed: %v", err)
	}
	if tpl.Prompt != "Answer {{question}}" {
		t.Errorf("prompt = %q", tpl.Prompt)
	}

	if _, err := c.GetTemplate(ctx, "qa", 0); err != nil {
		t.Fatalf("GetTemplate latest failed: %v", err)
	}
	if err := c.SaveTemplate(ctx, Template{Name: "qa", Version: 4, Prompt: "p"}); err != nil {
		t.Fatalf("SaveTemplate failed: %v", err)
	}
	if err := c.DeleteTemplate(ctx, "qa", 4); err != nil {
		t.Fatalf("DeleteTemplate failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []call{
		{http.MethodGet, "/template"},
		{http.MethodGet, "/template/qa/2"},
		{http.MethodGet, "/template/qa"},
		{http.MethodPost, "/template"},
		{http.MethodDelete, "/template/qa/4"},
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %+v, want %+v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, calls[i], want[i])
		}
	}
}

func TestExecuteVariant(t *testing.T) {
	c := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/optimizer/run" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			Variant compare.Variant   `json:"variant"`
			Vars    map[string]string `json:"vars"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if req.Variant.Template != "qa" || req.Vars["question"] != "why" {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(compare.Outcome{Answer: "because", Score: 0.8, Latency: 1.5})
	}))

	out, err := c.ExecuteVariant(context.Background(),
		compare.Variant{Provider: "ollama", Model: "llama3", Template: "qa"},
		map[string]string{"question": "why"})
	if err != nil {
		t.Fatalf("ExecuteVariant failed: %v", err)
	}
	if out.Answer != "because" || out.Score != 0.8 || out.Latency != 1.5 {
		t.Errorf("outcome = %+v", out)
	}
}

func TestConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, time.Second)
	_, err := c.ListTemplates(context.Background())
	if err == nil {
		t.Fatal("expected a transport error")
	}
	if !strings.Contains(err.Error(), "/template") {
		t.Errorf("err %q does not name the failing route", err)
	}
}
