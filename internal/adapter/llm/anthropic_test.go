package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"solmate/internal/domain"
	"solmate/internal/infra/config"
)

func TestAnthropicProviderGenerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "ant-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != defaultAnthropicVersion {
			t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.System != "You are SolMate." {
			t.Errorf("system = %q", req.System)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("messages = %+v", req.Messages)
		}
		if req.MaxTokens != 1000 {
			t.Errorf("max_tokens = %d, want default applied", req.MaxTokens)
		}

		resp := anthropicResponse{
			ID:    "msg_01",
			Model: "claude-3-opus-20240229",
			Role:  "assistant",
			Content: []anthropicContent{
				{Type: "text", Text: "Hello "},
				{Type: "text", Text: "there."},
			},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider := NewAnthropicProvider(config.ProviderConfig{
		Name:    "anthropic",
		BaseURL: server.URL,
		APIKey:  "ant-key",
		Model:   "claude-3-opus-20240229",
	}, newTestLogger())

	resp, err := provider.Generate(context.Background(), domain.GenerateRequest{
		Messages: []domain.Message{
			{Role: domain.RoleSystem, Content: "You are SolMate."},
			{Role: domain.RoleUser, Content: "Hi"},
		},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Content != "Hello there." {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Provider != "anthropic" {
		t.Errorf("provider = %q", resp.Provider)
	}
}

func TestAnthropicProviderGenerateStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`data: {"type":"message_start"}`,
			`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"Sol"}}`,
			`data: {"type":"content_block_delta","delta":{"type":"text_delta","text":"ana"}}`,
			`data: {"type":"message_stop"}`,
		}
		for _, e := range events {
			w.Write([]byte(e + "\n\n"))
		}
	}))
	defer server.Close()

	provider := NewAnthropicProvider(config.ProviderConfig{
		Name:    "anthropic",
		BaseURL: server.URL,
		APIKey:  "ant-key",
		Model:   "claude-3-opus-20240229",
	}, newTestLogger())

	ch, err := provider.GenerateStream(context.Background(), domain.GenerateRequest{
		Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}

	var sb strings.Builder
	var done bool
	for delta := range ch {
		if delta.Err != nil {
			t.Fatalf("stream error: %v", delta.Err)
		}
		sb.WriteString(delta.Content)
		if delta.Done {
			done = true
		}
	}
	if sb.String() != "Solana" {
		t.Errorf("content = %q", sb.String())
	}
	if !done {
		t.Error("no done delta received")
	}
}
