package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func mockServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("expected /v1/messages, got %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") == "" {
			t.Error("missing x-api-key header")
		}
		if r.Header.Get("anthropic-version") != "2023-06-01" {
			t.Error("missing anthropic-version header")
		}

		resp := apiResponse{
			ID:      "msg-test",
			Role:    "assistant",
			Content: []apiBlock{{Type: "text", Text: text}},
			Model:   "claude-sonnet-4-20250514",
			Usage:   apiUsage{InputTokens: 10, OutputTokens: 8},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func newTestClient(t *testing.T, baseURL string) *ClaudeClient {
	t.Helper()
	client, err := NewClaudeClient(Config{
		APIKey:          "test-key",
		BaseURL:         baseURL,
		RateLimitRPM:    6000,
		BreakerDisabled: true,
		EnableCaching:   false,
	})
	if err != nil {
		t.Fatalf("NewClaudeClient: %v", err)
	}
	return client
}

func TestNewClaudeClientRequiresKey(t *testing.T) {
	if _, err := NewClaudeClient(Config{}); err == nil {
		t.Error("expected error without API key")
	}
}

func TestCall(t *testing.T) {
	server := mockServer(t, "hello from the model")
	defer server.Close()

	client := newTestClient(t, server.URL)
	result, err := client.Call(context.Background(), Request{System: "sys", User: "hi"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.Content != "hello from the model" {
		t.Errorf("content = %q", result.Content)
	}
	if result.Usage.InputTokens != 10 || result.Usage.OutputTokens != 8 {
		t.Errorf("usage = %+v", result.Usage)
	}
	if result.Cost <= 0 {
		t.Error("expected non-zero cost")
	}
}

func TestCallJSONExtractsFencedJSON(t *testing.T) {
	server := mockServer(t, "Here you go:\n```json\n{\"score\": 72}\n```")
	defer server.Close()

	client := newTestClient(t, server.URL)
	var out struct {
		Score int `json:"score"`
	}
	if _, err := client.CallJSON(context.Background(), Request{User: "score it"}, &out); err != nil {
		t.Fatalf("CallJSON: %v", err)
	}
	if out.Score != 72 {
		t.Errorf("score = %d, want 72", out.Score)
	}
}

func TestCallJSONFailsOnGarbage(t *testing.T) {
	server := mockServer(t, "I am unable to produce structured output today.")
	defer server.Close()

	client := newTestClient(t, server.URL)
	client.maxRetries = 2

	var out map[string]any
	_, err := client.CallJSON(context.Background(), Request{User: "x"}, &out)
	if err == nil {
		t.Fatal("expected error on unparseable output")
	}
}

func TestCallCachesTextResponses(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		resp := apiResponse{
			Content: []apiBlock{{Type: "text", Text: "cached"}},
			Model:   "claude-sonnet-4-20250514",
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewClaudeClient(Config{
		APIKey:          "test-key",
		BaseURL:         server.URL,
		RateLimitRPM:    6000,
		BreakerDisabled: true,
		EnableCaching:   true,
	})
	if err != nil {
		t.Fatal(err)
	}

	req := Request{System: "s", User: "u"}
	if _, err := client.Call(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Call(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("server saw %d calls, want 1 (second should hit cache)", calls)
	}
}

func TestVisionRequestCarriesImageBlocks(t *testing.T) {
	var captured apiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&captured)
		resp := apiResponse{Content: []apiBlock{{Type: "text", Text: "{}"}}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Call(context.Background(), Request{
		User: "describe",
		Images: []Image{
			{MediaType: "image/png", Data: []byte{1, 2, 3}},
			{MediaType: "image/jpeg", Data: []byte{4, 5}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(captured.Messages) != 1 {
		t.Fatalf("messages = %d", len(captured.Messages))
	}
	blocks := captured.Messages[0].Content
	if len(blocks) != 3 {
		t.Fatalf("blocks = %d, want 2 images + 1 text", len(blocks))
	}
	if blocks[0].Type != "image" || blocks[1].Type != "image" || blocks[2].Type != "text" {
		t.Errorf("block order wrong: %s %s %s", blocks[0].Type, blocks[1].Type, blocks[2].Type)
	}
	if blocks[0].Source.MediaType != "image/png" {
		t.Errorf("media type = %s", blocks[0].Source.MediaType)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"prose wrapped", `Sure! {"a":1} Hope that helps.`, `{"a":1}`},
		{"array", `[1,2,3]`, `[1,2,3]`},
		{"nested braces in strings", `{"s":"{not a close}"}`, `{"s":"{not a close}"}`},
		{"no json", `nothing here`, ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.in); got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
