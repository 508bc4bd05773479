package usecase

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"solmate/internal/domain"
	"solmate/internal/infra/config"
)

// Simulated streaming parameters for backends without native delivery:
// responses are replayed in small word groups at a steady pace.
const (
	simulatedChunkWords    = 5
	simulatedChunkInterval = 100 * time.Millisecond
)

// Relay streams completions to callers as a sequence of tagged events.
// Backends with native streaming are consumed incrementally; all others are
// generated whole and chunked at a fixed pace, so callers see one uniform
// event protocol either way. Every stream that starts ends with exactly one
// Done or Error event, unless the caller cancels first.
type Relay struct {
	resolver
	metrics       *Metrics
	chunkInterval time.Duration
	logger        *slog.Logger
}

// NewRelay creates a Relay.
func NewRelay(registry ProviderRegistry, metrics *Metrics, cfg config.LLMConfig, logger *slog.Logger) *Relay {
	return &Relay{
		resolver: resolver{
			registry:        registry,
			defaults:        cfg.Defaults,
			defaultProvider: cfg.DefaultProvider,
		},
		metrics:       metrics,
		chunkInterval: simulatedChunkInterval,
		logger:        logger,
	}
}

// Stream starts a streaming generation. Resolution failures (unknown
// provider, missing credential) are returned synchronously before any
// upstream I/O; upstream failures arrive as an Error event on the channel.
// Streamed responses are never cached.
func (r *Relay) Stream(ctx context.Context, messages []domain.Message, opts domain.GenerateOptions) (<-chan domain.StreamEvent, error) {
	r.metrics.RecordCall()
	start := time.Now()

	gen, profile, req, err := r.resolve("Relay.Stream", messages, opts, true)
	if err != nil {
		r.metrics.RecordError()
		return nil, err
	}

	meta := &domain.StreamMetadata{
		Provider: profile.DisplayName,
		Model:    req.Model,
	}

	r.logger.Info("generating streaming response", "provider", profile.ID, "model", req.Model)

	events := make(chan domain.StreamEvent, 16)

	if sg, ok := gen.(domain.StreamingGenerator); ok {
		deltas, err := sg.GenerateStream(ctx, req)
		if err != nil {
			r.metrics.RecordError()
			return nil, err
		}
		go r.relayNative(ctx, deltas, events, meta, start)
		return events, nil
	}

	go r.relaySimulated(ctx, gen, req, events, meta, start)
	return events, nil
}

// relayNative forwards upstream deltas as chunk events, closing with a
// single Done carrying the accumulated content.
func (r *Relay) relayNative(ctx context.Context, deltas <-chan domain.StreamDelta, events chan<- domain.StreamEvent, meta *domain.StreamMetadata, start time.Time) {
	defer close(events)

	var full strings.Builder
	for delta := range deltas {
		if delta.Err != nil {
			r.metrics.RecordError()
			r.send(ctx, events, domain.StreamEvent{Type: domain.StreamError, Err: delta.Err})
			return
		}
		if delta.Content != "" {
			full.WriteString(delta.Content)
			if !r.send(ctx, events, domain.StreamEvent{Type: domain.StreamChunk, Chunk: delta.Content}) {
				return
			}
		}
		if delta.Done {
			r.metrics.ObserveLatency(time.Since(start))
			r.send(ctx, events, domain.StreamEvent{
				Type:     domain.StreamDone,
				Content:  strings.TrimSpace(full.String()),
				Metadata: meta,
			})
			return
		}
	}
	// Upstream closed without a terminal delta; only cancellation does this.
}

// relaySimulated generates the full response, then replays it in paced
// word-group chunks.
func (r *Relay) relaySimulated(ctx context.Context, gen domain.Generator, req domain.GenerateRequest, events chan<- domain.StreamEvent, meta *domain.StreamMetadata, start time.Time) {
	defer close(events)

	resp, err := gen.Generate(ctx, req)
	if err != nil {
		r.metrics.RecordError()
		r.send(ctx, events, domain.StreamEvent{Type: domain.StreamError, Err: err})
		return
	}

	limiter := rate.NewLimiter(rate.Every(r.chunkInterval), 1)
	words := strings.Fields(resp.Content)

	// Every chunk except the last carries its trailing separator, so the
	// concatenation of delivered chunks is exactly the Done content.
	var full strings.Builder
	for i := 0; i < len(words); i += simulatedChunkWords {
		end := i + simulatedChunkWords
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[i:end], " ")
		if end < len(words) {
			chunk += " "
		}

		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if !r.send(ctx, events, domain.StreamEvent{Type: domain.StreamChunk, Chunk: chunk}) {
			return
		}
		full.WriteString(chunk)
	}

	r.metrics.ObserveLatency(time.Since(start))
	r.send(ctx, events, domain.StreamEvent{
		Type:     domain.StreamDone,
		Content:  full.String(),
		Metadata: meta,
	})
}

func (r *Relay) send(ctx context.Context, events chan<- domain.StreamEvent, ev domain.StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
