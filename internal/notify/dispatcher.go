package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/xard1993/komun-api/internal/telemetry"
)

// DispatcherConfig controls delivery retries.
type DispatcherConfig struct {
	// MaxTries is the number of delivery attempts per notice.
	// Default: 3
	MaxTries uint

	// InitialInterval is the delay before the first retry.
	// Default: 200ms
	InitialInterval time.Duration

	// MaxInterval caps the delay between retries.
	// Default: 2s
	MaxInterval time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *DispatcherConfig) ApplyDefaults() {
	if c.MaxTries == 0 {
		c.MaxTries = 3
	}
	if c.InitialInterval == 0 {
		c.InitialInterval = 200 * time.Millisecond
	}
	if c.MaxInterval == 0 {
		c.MaxInterval = 2 * time.Second
	}
}

// Validate checks the configuration.
func (c *DispatcherConfig) Validate() error {
	if c.MaxInterval < c.InitialInterval {
		return fmt.Errorf("max interval (%s) must be >= initial interval (%s)", c.MaxInterval, c.InitialInterval)
	}
	return nil
}

// Dispatcher delivers notices best-effort. Failed notices are retried with exponential
// backoff, then logged and counted; they are never reported to the caller.
type Dispatcher struct {
	sender Sender
	cfg    DispatcherConfig
}

// NewDispatcher creates a dispatcher over sender.
func NewDispatcher(sender Sender, cfg DispatcherConfig) (*Dispatcher, error) {
	if sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dispatcher config: %w", err)
	}
	return &Dispatcher{sender: sender, cfg: cfg}, nil
}

// Dispatch sends every notice and returns how many were delivered.
func (d *Dispatcher) Dispatch(ctx context.Context, notices []Notice) int {
	m := telemetry.GetMetrics()
	sent := 0

	for _, n := range notices {
		start := time.Now()
		err := d.send(ctx, n)
		m.NotificationDuration.Record(ctx, float64(time.Since(start).Milliseconds()))

		if err != nil {
			m.NotificationFailuresTotal.Add(ctx, 1)
			log.Warn().
				Err(err).
				Str("tenant", n.TenantSlug).
				Str("unit", n.UnitLabel).
				Str("user_id", n.Recipient.UserID.String()).
				Msg("Failed to deliver approval notice")
			continue
		}

		m.NotificationsSentTotal.Add(ctx, 1)
		sent++
	}

	return sent
}

func (d *Dispatcher) send(ctx context.Context, n Notice) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.cfg.InitialInterval
	b.MaxInterval = d.cfg.MaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := d.sender.SendApprovalNotice(ctx, n)
		if errors.Is(err, ErrInvalidRecipient) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(d.cfg.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Debug().Err(err).Dur("retry_in", next).Msg("Retrying approval notice")
		}),
	)
	return err
}
