package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"solmate/internal/domain"
)

func collectEvents(t *testing.T, events <-chan domain.StreamEvent) []domain.StreamEvent {
	t.Helper()
	var out []domain.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out draining stream")
		}
	}
}

func TestRelayNativeStream(t *testing.T) {
	gen := &stubStreamingGenerator{
		stubGenerator: stubGenerator{name: "openai"},
		deltas: []domain.StreamDelta{
			{Content: "Solana "},
			{Content: "is "},
			{Content: "fast."},
			{Done: true},
		},
	}
	reg := newStubRegistry()
	reg.add(gen, openaiProfile(true))

	m := NewMetrics()
	r := NewRelay(reg, m, testLLMConfig(), slog.Default())

	events, err := r.Stream(context.Background(), userPrompt("tell me about solana"), domain.GenerateOptions{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	got := collectEvents(t, events)
	if len(got) != 4 {
		t.Fatalf("events = %d: %+v", len(got), got)
	}

	var chunks strings.Builder
	for _, ev := range got[:3] {
		if ev.Type != domain.StreamChunk {
			t.Fatalf("event type = %v", ev.Type)
		}
		chunks.WriteString(ev.Chunk)
	}

	done := got[3]
	if done.Type != domain.StreamDone {
		t.Fatalf("terminal event = %+v", done)
	}
	if done.Content != strings.TrimSpace(chunks.String()) {
		t.Errorf("done content = %q, chunks = %q", done.Content, chunks.String())
	}
	if done.Metadata == nil || done.Metadata.Provider != "OpenAI" || done.Metadata.Model != "gpt-4" {
		t.Errorf("metadata = %+v", done.Metadata)
	}

	if s := m.Snapshot(); s.TotalCalls != 1 || s.Errors != 0 || s.TotalResponseTime == 0 {
		t.Errorf("metrics = %+v", s)
	}
}

func TestRelayNativeStreamError(t *testing.T) {
	streamErr := errors.New("connection reset")
	gen := &stubStreamingGenerator{
		stubGenerator: stubGenerator{name: "openai"},
		deltas: []domain.StreamDelta{
			{Content: "partial "},
			{Err: streamErr},
		},
	}
	reg := newStubRegistry()
	reg.add(gen, openaiProfile(true))

	m := NewMetrics()
	r := NewRelay(reg, m, testLLMConfig(), slog.Default())

	events, err := r.Stream(context.Background(), userPrompt("hello"), domain.GenerateOptions{})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	got := collectEvents(t, events)
	last := got[len(got)-1]
	if last.Type != domain.StreamError || !errors.Is(last.Err, streamErr) {
		t.Fatalf("terminal event = %+v", last)
	}
	for _, ev := range got {
		if ev.Type == domain.StreamDone {
			t.Error("no Done event may follow an error")
		}
	}
	if s := m.Snapshot(); s.Errors != 1 {
		t.Errorf("errors = %d", s.Errors)
	}
}

func TestRelaySimulatedStream(t *testing.T) {
	content := "one two three four five six seven eight nine ten eleven"
	gen := &stubGenerator{
		name: "llama",
		resp: &domain.CompletionResponse{Provider: "llama", Model: "llama-3-70b-chat", Content: content},
	}
	reg := newStubRegistry()
	reg.add(gen, domain.ProviderProfile{
		ID:           "llama",
		DisplayName:  "Llama",
		DefaultModel: "llama-3-70b-chat",
	})

	r := NewRelay(reg, NewMetrics(), testLLMConfig(), slog.Default())
	r.chunkInterval = time.Millisecond

	events, err := r.Stream(context.Background(), userPrompt("count"), domain.GenerateOptions{Provider: "llama"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	got := collectEvents(t, events)

	// 11 words at 5 words per chunk; non-final chunks keep their separator.
	wantChunks := []string{
		"one two three four five ",
		"six seven eight nine ten ",
		"eleven",
	}
	if len(got) != len(wantChunks)+1 {
		t.Fatalf("events = %d: %+v", len(got), got)
	}
	var concat strings.Builder
	for i, want := range wantChunks {
		if got[i].Type != domain.StreamChunk || got[i].Chunk != want {
			t.Errorf("chunk %d = %+v, want %q", i, got[i], want)
		}
		concat.WriteString(got[i].Chunk)
	}

	done := got[len(got)-1]
	if done.Type != domain.StreamDone {
		t.Fatalf("terminal event = %+v", done)
	}
	if done.Content != content {
		t.Errorf("done content = %q", done.Content)
	}
	// A client that renders the stream by concatenation must end up with
	// exactly the final content.
	if concat.String() != done.Content {
		t.Errorf("concatenated chunks = %q, done content = %q", concat.String(), done.Content)
	}
	if done.Metadata == nil || done.Metadata.Provider != "Llama" {
		t.Errorf("metadata = %+v", done.Metadata)
	}
}

func TestRelaySimulatedStreamBackendError(t *testing.T) {
	gen := &stubGenerator{name: "llama", err: domain.ErrUpstream}
	reg := newStubRegistry()
	reg.add(gen, domain.ProviderProfile{ID: "llama", DefaultModel: "llama-3-70b-chat"})

	m := NewMetrics()
	r := NewRelay(reg, m, testLLMConfig(), slog.Default())
	r.chunkInterval = time.Millisecond

	events, err := r.Stream(context.Background(), userPrompt("hello"), domain.GenerateOptions{Provider: "llama"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	got := collectEvents(t, events)
	if len(got) != 1 || got[0].Type != domain.StreamError || !errors.Is(got[0].Err, domain.ErrUpstream) {
		t.Fatalf("events = %+v", got)
	}
	if s := m.Snapshot(); s.Errors != 1 {
		t.Errorf("errors = %d", s.Errors)
	}
}

func TestRelayResolutionFailsSynchronously(t *testing.T) {
	reg := newStubRegistry()
	reg.add(&stubGenerator{name: "openai"}, openaiProfile(false))

	m := NewMetrics()
	r := NewRelay(reg, m, testLLMConfig(), slog.Default())

	if _, err := r.Stream(context.Background(), userPrompt("hi"), domain.GenerateOptions{Provider: "gemini"}); !errors.Is(err, domain.ErrUnsupportedProvider) {
		t.Errorf("unknown provider error = %v", err)
	}
	if _, err := r.Stream(context.Background(), userPrompt("hi"), domain.GenerateOptions{}); !errors.Is(err, domain.ErrMissingCredential) {
		t.Errorf("missing credential error = %v", err)
	}
	if s := m.Snapshot(); s.Errors != 2 {
		t.Errorf("errors = %d", s.Errors)
	}
}

func TestRelayCancelStopsSimulatedStream(t *testing.T) {
	words := make([]string, 200)
	for i := range words {
		words[i] = "word"
	}
	gen := &stubGenerator{
		name: "llama",
		resp: &domain.CompletionResponse{Provider: "llama", Content: strings.Join(words, " ")},
	}
	reg := newStubRegistry()
	reg.add(gen, domain.ProviderProfile{ID: "llama", DefaultModel: "llama-3-70b-chat"})

	r := NewRelay(reg, NewMetrics(), testLLMConfig(), slog.Default())
	r.chunkInterval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	events, err := r.Stream(ctx, userPrompt("go"), domain.GenerateOptions{Provider: "llama"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	<-events
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream did not close after cancellation")
		}
	}
}
