package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"solmate/internal/domain"
	"solmate/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// CircuitBreakerProvider wraps a Generator with circuit breaker protection.
// When the wrapped backend fails repeatedly, the circuit opens and subsequent
// calls fail fast without reaching the backend, preventing retry storms.
type CircuitBreakerProvider struct {
	inner   domain.Generator
	breaker *gobreaker.CircuitBreaker[*domain.CompletionResponse]
	logger  *slog.Logger
}

// streamingCircuitBreakerProvider adds stream passthrough for backends that
// deliver natively. Kept as a separate type so that a non-streaming backend
// wrapped in a breaker still fails the StreamingGenerator type assertion.
type streamingCircuitBreakerProvider struct {
	*CircuitBreakerProvider
	innerStream domain.StreamingGenerator
}

// WrapWithBreaker wraps inner with a circuit breaker, preserving its
// streaming capability. If cfg is zero-valued, sensible defaults are used.
func WrapWithBreaker(inner domain.Generator, cfg config.CircuitBreakerConfig, logger *slog.Logger) domain.Generator {
	cb := newCircuitBreakerProvider(inner, cfg, logger)
	if sg, ok := inner.(domain.StreamingGenerator); ok {
		return &streamingCircuitBreakerProvider{
			CircuitBreakerProvider: cb,
			innerStream:            sg,
		}
	}
	return cb
}

func newCircuitBreakerProvider(inner domain.Generator, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerProvider {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	name := inner.Name()
	cb := gobreaker.NewCircuitBreaker[*domain.CompletionResponse](gobreaker.Settings{
		Name:        "llm:" + name,
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &CircuitBreakerProvider{
		inner:   inner,
		breaker: cb,
		logger:  logger,
	}
}

// Generate implements domain.Generator. Calls are routed through the
// circuit breaker.
func (p *CircuitBreakerProvider) Generate(ctx context.Context, req domain.GenerateRequest) (*domain.CompletionResponse, error) {
	resp, err := p.breaker.Execute(func() (*domain.CompletionResponse, error) {
		return p.inner.Generate(ctx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("%w: provider %q circuit open", domain.ErrUpstream, p.inner.Name())
		}
		return nil, err
	}
	return resp, nil
}

// Name implements domain.Generator.
func (p *CircuitBreakerProvider) Name() string { return p.inner.Name() }

// State returns the current circuit breaker state for monitoring.
func (p *CircuitBreakerProvider) State() gobreaker.State {
	return p.breaker.State()
}

// Counts returns the current circuit breaker failure/success counts.
func (p *CircuitBreakerProvider) Counts() gobreaker.Counts {
	return p.breaker.Counts()
}

// GenerateStream implements domain.StreamingGenerator. The breaker protects
// stream initiation; errors after the connection is established flow through
// the channel and do not trip the breaker.
func (p *streamingCircuitBreakerProvider) GenerateStream(ctx context.Context, req domain.GenerateRequest) (<-chan domain.StreamDelta, error) {
	var ch <-chan domain.StreamDelta
	_, err := p.breaker.Execute(func() (*domain.CompletionResponse, error) {
		var streamErr error
		ch, streamErr = p.innerStream.GenerateStream(ctx, req)
		return nil, streamErr
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("%w: provider %q circuit open", domain.ErrUpstream, p.inner.Name())
		}
		return nil, err
	}
	return ch, nil
}

// Compile-time interface checks.
var (
	_ domain.Generator          = (*CircuitBreakerProvider)(nil)
	_ domain.StreamingGenerator = (*streamingCircuitBreakerProvider)(nil)
)
