package service

import (
	"context"
	"fmt"
	"time"

	"rental-service/internal/util"

	"go.uber.org/zap"
)

// AvailabilityRepairer rewrites drifted availability flags. *store.Store implements it.
type AvailabilityRepairer interface {
	ReconcileAvailability(ctx context.Context) (int64, error)
}

// Reconciler re-derives every listing's availability from its bookings,
// repairing flags written outside the booking service
type Reconciler struct {
	repo     AvailabilityRepairer
	onChange func()
	logger   *zap.Logger
}

// NewReconciler creates a new reconciler. onChange runs when any flag was repaired and may be nil.
func NewReconciler(repo AvailabilityRepairer, onChange func()) *Reconciler {
	return &Reconciler{
		repo:     repo,
		onChange: onChange,
		logger:   util.GetLogger(),
	}
}

// Run performs one reconciliation pass and returns the number of listings repaired
func (r *Reconciler) Run(ctx context.Context) (fixed int64, err error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.Run")
	defer func() { util.EndSpan(span, err) }()

	start := time.Now()
	fixed, err = r.repo.ReconcileAvailability(ctx)
	if err != nil {
		return 0, fmt.Errorf("availability reconciliation failed: %w", err)
	}

	util.AvailabilityRepairsTotal.Add(float64(fixed))
	if fixed > 0 {
		r.logger.Warn("Repaired listing availability",
			zap.Int64("listings", fixed),
			zap.Duration("took", time.Since(start)))
		if r.onChange != nil {
			r.onChange()
		}
	} else {
		r.logger.Debug("Listing availability consistent", zap.Duration("took", time.Since(start)))
	}
	return fixed, nil
}
