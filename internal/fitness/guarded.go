package fitness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"agentevo/internal/logging"
	"agentevo/internal/model"
)

const (
	defaultMaxFailures uint32        = 3
	defaultOpenTimeout time.Duration = 30 * time.Second
	defaultInterval    time.Duration = 60 * time.Second
)

type GuardConfig struct {
	// MaxFailures is the number of consecutive failed batches that opens the circuit.
	MaxFailures uint32        `json:"max_failures" yaml:"max_failures" toml:"max_failures"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout" toml:"timeout"`
	Interval    time.Duration `json:"interval" yaml:"interval" toml:"interval"`
	// BatchesPerSecond <= 0 disables rate limiting.
	BatchesPerSecond float64 `json:"batches_per_second" yaml:"batches_per_second" toml:"batches_per_second"`
	Burst            int     `json:"burst" yaml:"burst" toml:"burst"`
}

// Guarded protects an external evaluator with a rate limiter and a circuit
// breaker. Once the circuit opens, batches fail fast until it half-opens.
type Guarded struct {
	name    string
	inner   Evaluator
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[map[string]Result]
}

func NewGuarded(name string, inner Evaluator, cfg GuardConfig, logger *slog.Logger) *Guarded {
	logger = logging.OrDiscard(logger)
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultOpenTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultInterval
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.BatchesPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.BatchesPerSecond), burst)
	}

	breaker := gobreaker.NewCircuitBreaker[map[string]Result](gobreaker.Settings{
		Name:        "evaluator:" + name,
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("evaluator circuit state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about evaluator health.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &Guarded{name: name, inner: inner, limiter: limiter, breaker: breaker}
}

func (g *Guarded) EvaluateBatch(ctx context.Context, batch []*model.AgentChromosome) (map[string]Result, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("evaluator %q rate limit: %w", g.name, err)
	}
	out, err := g.breaker.Execute(func() (map[string]Result, error) {
		return g.inner.EvaluateBatch(ctx, batch)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("evaluator %q circuit open: %w", g.name, err)
		}
		return nil, err
	}
	return out, nil
}

func (g *Guarded) State() gobreaker.State {
	return g.breaker.State()
}
