package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

const (
	defaultStaleCheckoutTTL   = 24 * time.Hour
	defaultStaleCheckoutBatch = 200

	staleCheckoutReason = "stale_checkout"
)

type staleOrderFinder interface {
	FindStalePaymentPending(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

type checkoutDiscarder interface {
	DiscardPendingCheckout(ctx context.Context, orderID uuid.UUID, reason string) (bool, error)
}

type StaleCheckoutJobParams struct {
	Logger    *logger.Logger
	Finder    staleOrderFinder
	Discarder checkoutDiscarder
	TTL       time.Duration
	BatchSize int
}

// NewStaleCheckoutJob builds the job that removes payment_pending orders whose
// checkout was abandoned without the gateway ever calling back.
func NewStaleCheckoutJob(params StaleCheckoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Finder == nil {
		return nil, fmt.Errorf("stale order finder required")
	}
	if params.Discarder == nil {
		return nil, fmt.Errorf("checkout discarder required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultStaleCheckoutTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultStaleCheckoutBatch
	}
	return &staleCheckoutJob{
		logg:      params.Logger,
		finder:    params.Finder,
		discarder: params.Discarder,
		ttl:       ttl,
		batch:     batch,
		now:       time.Now,
	}, nil
}

type staleCheckoutJob struct {
	logg      *logger.Logger
	finder    staleOrderFinder
	discarder checkoutDiscarder
	ttl       time.Duration
	batch     int
	now       func() time.Time
}

func (j *staleCheckoutJob) Name() string { return "stale-checkout" }

// Run handles one batch per cycle. Orders paid in the meantime are skipped
// by the discard itself.
func (j *staleCheckoutJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	ids, err := j.finder.FindStalePaymentPending(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("find stale checkouts: %w", err)
	}

	var (
		errs      error
		discarded int
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		ok, err := j.discarder.DiscardPendingCheckout(ctx, id, staleCheckoutReason)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("discard order %s: %w", id, err))
			continue
		}
		if ok {
			discarded++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":    cutoff,
		"found":     len(ids),
		"discarded": discarded,
	})
	j.logg.Info(logCtx, "stale checkout sweep complete")
	return errs
}
