package telegram

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/sony/gobreaker"
)

const (
	breakerTripAfter = 5
	breakerCooldown  = 30 * time.Second
)

// ErrCircuitOpen is returned while Telegram sends are suspended after
// repeated failures.
var ErrCircuitOpen = gobreaker.ErrOpenState

// sendGuard retries a send with exponential backoff and stops calling the
// Bot API for a cooldown once deliveries keep failing.
type sendGuard struct {
	breaker  *gobreaker.CircuitBreaker
	attempts uint
	delay    time.Duration
}

func newSendGuard(attempts uint, delay time.Duration, logger *slog.Logger) *sendGuard {
	if attempts == 0 {
		attempts = 1
	}
	settings := gobreaker.Settings{
		Name:        "telegram_send",
		MaxRequests: 1,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= breakerTripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
		// A cancelled send is shutdown, not an unhealthy API.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	return &sendGuard{
		breaker:  gobreaker.NewCircuitBreaker(settings),
		attempts: attempts,
		delay:    delay,
	}
}

// do runs send under the breaker. One exhausted retry sequence counts as a
// single breaker failure.
func (g *sendGuard) do(ctx context.Context, send func(ctx context.Context) error) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, retry.Do(
			func() error { return send(ctx) },
			retry.Context(ctx),
			retry.Attempts(g.attempts),
			retry.Delay(g.delay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
		)
	})
	return err
}
