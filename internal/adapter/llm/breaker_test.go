package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solmate/internal/domain"
	"solmate/internal/infra/config"
)

type flakyGenerator struct {
	name  string
	fail  bool
	calls int
}

func (f *flakyGenerator) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.CompletionResponse, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("upstream down")
	}
	return &domain.CompletionResponse{Provider: f.name, Content: "ok"}, nil
}

func (f *flakyGenerator) Name() string { return f.name }

type flakyStreamingGenerator struct {
	flakyGenerator
}

func (f *flakyStreamingGenerator) GenerateStream(ctx context.Context, req domain.GenerateRequest) (<-chan domain.StreamDelta, error) {
	f.calls++
	if f.fail {
		return nil, errors.New("upstream down")
	}
	ch := make(chan domain.StreamDelta, 1)
	ch <- domain.StreamDelta{Done: true}
	close(ch)
	return ch, nil
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyGenerator{name: "openai", fail: true}
	wrapped := WrapWithBreaker(inner, config.CircuitBreakerConfig{
		MaxFailures: 3,
		Timeout:     time.Minute,
	}, newTestLogger())

	req := domain.GenerateRequest{Messages: []domain.Message{{Role: domain.RoleUser, Content: "hi"}}}

	for i := 0; i < 3; i++ {
		_, err := wrapped.Generate(context.Background(), req)
		require.Error(t, err)
	}

	// Circuit is open now; calls fail fast without reaching the backend.
	callsBefore := inner.calls
	_, err := wrapped.Generate(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Equal(t, callsBefore, inner.calls, "open circuit must not call backend")

	cb, ok := wrapped.(*CircuitBreakerProvider)
	require.True(t, ok)
	assert.Equal(t, gobreaker.StateOpen, cb.State())
}

func TestBreakerPassesThroughSuccess(t *testing.T) {
	inner := &flakyGenerator{name: "openai"}
	wrapped := WrapWithBreaker(inner, config.CircuitBreakerConfig{}, newTestLogger())

	resp, err := wrapped.Generate(context.Background(), domain.GenerateRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, "openai", wrapped.Name())
}

func TestBreakerPreservesStreamingCapability(t *testing.T) {
	streaming := &flakyStreamingGenerator{flakyGenerator{name: "anthropic"}}
	wrapped := WrapWithBreaker(streaming, config.CircuitBreakerConfig{}, newTestLogger())

	sg, ok := wrapped.(domain.StreamingGenerator)
	require.True(t, ok, "streaming backend must stay streaming when wrapped")

	ch, err := sg.GenerateStream(context.Background(), domain.GenerateRequest{})
	require.NoError(t, err)
	delta := <-ch
	assert.True(t, delta.Done)
}

func TestBreakerHidesStreamingForNonStreamingBackend(t *testing.T) {
	inner := &flakyGenerator{name: "deepseek"}
	wrapped := WrapWithBreaker(inner, config.CircuitBreakerConfig{}, newTestLogger())

	_, ok := wrapped.(domain.StreamingGenerator)
	assert.False(t, ok, "non-streaming backend must not advertise streaming when wrapped")
}

func TestBreakerProtectsStreamInitiation(t *testing.T) {
	streaming := &flakyStreamingGenerator{flakyGenerator{name: "anthropic", fail: true}}
	wrapped := WrapWithBreaker(streaming, config.CircuitBreakerConfig{
		MaxFailures: 2,
		Timeout:     time.Minute,
	}, newTestLogger())

	sg := wrapped.(domain.StreamingGenerator)
	req := domain.GenerateRequest{}

	for i := 0; i < 2; i++ {
		_, err := sg.GenerateStream(context.Background(), req)
		require.Error(t, err)
	}

	callsBefore := streaming.calls
	_, err := sg.GenerateStream(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstream)
	assert.Equal(t, callsBefore, streaming.calls)
}
