package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stageline-io/stageline/pkg/protocol"
)

func newOpenAITestServer(t *testing.T, capture *map[string]any, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		*capture = body

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
			"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestOpenAIComplete_PlainText(t *testing.T) {
	var captured map[string]any
	srv := newOpenAITestServer(t, &captured, "hello")
	defer srv.Close()

	p := NewOpenAI("test-key", WithBaseURL(srv.URL), WithModel("gpt-4o"))
	resp, err := p.Complete(context.Background(), protocol.CompletionRequest{
		System: "be brief",
		Text:   "describe the project",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens() != 15 {
		t.Errorf("total tokens = %d", resp.Usage.TotalTokens())
	}

	msgs := captured["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	user := msgs[1].(map[string]any)
	// Zero images: content must be a plain string, not a parts array.
	if _, ok := user["content"].(string); !ok {
		t.Errorf("user content = %T, want string", user["content"])
	}
	if _, ok := captured["response_format"]; ok {
		t.Error("response_format present without JSON mode")
	}
}

func TestOpenAIComplete_JSONModeWithImages(t *testing.T) {
	var captured map[string]any
	srv := newOpenAITestServer(t, &captured, `{"ok":true}`)
	defer srv.Close()

	p := NewOpenAI("test-key", WithBaseURL(srv.URL))
	_, err := p.Complete(context.Background(), protocol.CompletionRequest{
		System:   "json only",
		Text:     "plan it",
		JSONMode: true,
		Images: []protocol.ImageAttachment{
			{Data: "data:image/jpeg;base64,abc123", Filename: "home.jpg"},
			{Data: "def456", Filename: "detail.png"},
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	rf, ok := captured["response_format"].(map[string]any)
	if !ok || rf["type"] != "json_object" {
		t.Errorf("response_format = %v", captured["response_format"])
	}

	user := captured["messages"].([]any)[1].(map[string]any)
	parts, ok := user["content"].([]any)
	if !ok {
		t.Fatalf("user content = %T, want parts array", user["content"])
	}
	if len(parts) != 3 {
		t.Fatalf("got %d parts, want text + 2 images", len(parts))
	}
	if parts[0].(map[string]any)["type"] != "text" {
		t.Errorf("first part = %v", parts[0])
	}
	img2 := parts[2].(map[string]any)["image_url"].(map[string]any)
	if img2["url"] != "data:image/png;base64,def456" {
		t.Errorf("bare base64 not wrapped as data URL: %v", img2["url"])
	}
}

func TestOpenAIComplete_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	p := NewOpenAI("test-key", WithBaseURL(srv.URL))
	_, err := p.Complete(context.Background(), protocol.CompletionRequest{Text: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
}
