package realtime

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"go-messenger/internal/logging"
	"go-messenger/internal/metrics"
)

type BreakerConfig struct {
	// Failures is the number of consecutive publish failures that opens
	// the breaker.
	Failures uint32
	// Cooldown is how long the breaker stays open before a trial publish.
	Cooldown time.Duration
}

// BreakerRelay stops publishing to a failing relay for a while. Broadcasts
// keep reaching local members when the breaker is open.
type BreakerRelay struct {
	next Relay
	cb   *gobreaker.CircuitBreaker[struct{}]
}

func NewBreakerRelay(next Relay, cfg BreakerConfig) *BreakerRelay {
	if cfg.Failures == 0 {
		cfg.Failures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	const name = "relay-publish"
	metrics.RelayBreakerState.Set(0)

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Failures
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			logging.Warn().Str("from", from.String()).Str("to", to.String()).Msg("relay breaker state changed")
			metrics.RelayBreakerState.Set(float64(to))
		},
	})
	return &BreakerRelay{next: next, cb: cb}
}

func (b *BreakerRelay) Publish(ctx context.Context, env Envelope) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.Publish(ctx, env)
	})
	return err
}

func (b *BreakerRelay) Subscribe(ctx context.Context, handle func(Envelope)) error {
	return b.next.Subscribe(ctx, handle)
}

// State reports the breaker state: closed, half-open or open.
func (b *BreakerRelay) State() string {
	return b.cb.State().String()
}

// breakerRejected reports whether err came from an open breaker rather
// than from the relay itself.
func breakerRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
