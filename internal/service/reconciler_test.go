package service

import (
	"context"
	"errors"
	"testing"

	"rental-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcilerRepairsDriftedFlags(t *testing.T) {
	f := newFixture(t, true)
	idle := createListing(t, f.store, f.owner.ID, int64p(10000), nil)

	_, err := f.book(t, f.farmer.ID, tomorrow, 1, models.DurationDays)
	require.NoError(t, err)

	f.store.SetAvailability(f.listing.ID, true)
	f.store.SetAvailability(idle.ID, false)

	flushed := 0
	r := NewReconciler(f.store, func() { flushed++ })

	fixed, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), fixed)
	assert.False(t, f.listingAvailable(t, f.listing.ID))
	assert.True(t, f.listingAvailable(t, idle.ID))
	assert.Equal(t, 1, flushed)

	fixed, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, fixed)
	assert.Equal(t, 1, flushed)
}

type failingRepairer struct{}

func (failingRepairer) ReconcileAvailability(ctx context.Context) (int64, error) {
	return 0, errors.New("connection reset")
}

func TestReconcilerReportsErrors(t *testing.T) {
	_, err := NewReconciler(failingRepairer{}, nil).Run(context.Background())
	assert.Error(t, err)
}
