package reputation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Trustmesh-Labs/trustmesh/core/pkg/contracts"
)

// Recalculator is the aggregator subset schedulers drive.
type Recalculator interface {
	Recalculate(ctx context.Context, subject string) (*contracts.ReputationScore, error)
}

// Dispatcher is the in-process recalculation scheduler. Triggers are
// deduplicated while pending; recalculation itself is idempotent, so
// at-least-once delivery is sufficient.
type Dispatcher struct {
	agg     recalcFunc
	queue   chan string
	limiter *rate.Limiter
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
}

type recalcFunc func(ctx context.Context, subject string) error

const (
	defaultQueueDepth = 1024
	// defaultSweepRate bounds background sweeps so they never starve
	// foreground triggers.
	defaultSweepRate = rate.Limit(20)
)

// NewDispatcher wires a dispatcher to an aggregator.
func NewDispatcher(agg Recalculator) *Dispatcher {
	return &Dispatcher{
		agg: func(ctx context.Context, subject string) error {
			_, err := agg.Recalculate(ctx, subject)
			return err
		},
		queue:   make(chan string, defaultQueueDepth),
		limiter: rate.NewLimiter(defaultSweepRate, 1),
		logger:  slog.Default().With("component", "reputation_dispatcher"),
		pending: make(map[string]struct{}),
	}
}

// Trigger enqueues a recalculation for the subject. Duplicate triggers for
// an already-pending subject coalesce. A full queue returns an error rather
// than blocking the caller; the periodic sweep will pick the subject up.
func (d *Dispatcher) Trigger(_ context.Context, subject string) error {
	d.mu.Lock()
	if _, ok := d.pending[subject]; ok {
		d.mu.Unlock()
		return nil
	}
	d.pending[subject] = struct{}{}
	d.mu.Unlock()

	select {
	case d.queue <- subject:
		return nil
	default:
		d.mu.Lock()
		delete(d.pending, subject)
		d.mu.Unlock()
		return fmt.Errorf("recalculation queue full, dropping trigger for %s", subject)
	}
}

// Run consumes triggers until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case subject := <-d.queue:
			d.mu.Lock()
			delete(d.pending, subject)
			d.mu.Unlock()

			if err := d.agg(ctx, subject); err != nil {
				d.logger.WarnContext(ctx, "recalculation failed", "subject", subject, "error", err)
			}
		}
	}
}

// Sweep re-triggers every known subject, rate limited. Used by the periodic
// refresh loop to keep NextCalculationAt honest even without vote traffic.
func (d *Dispatcher) Sweep(ctx context.Context, subjects []string) error {
	for _, subject := range subjects {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := d.Trigger(ctx, subject); err != nil {
			d.logger.WarnContext(ctx, "sweep trigger dropped", "subject", subject, "error", err)
		}
	}
	return nil
}

// RunSweeper periodically sweeps all scored subjects on the given interval.
func (d *Dispatcher) RunSweeper(ctx context.Context, store ScoreStore, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			subjects, err := store.Subjects(ctx)
			if err != nil {
				d.logger.WarnContext(ctx, "sweep subject listing failed", "error", err)
				continue
			}
			if err := d.Sweep(ctx, subjects); err != nil {
				return err
			}
		}
	}
}
