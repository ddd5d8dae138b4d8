package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"rental-service/internal/auth"
	"rental-service/internal/service"
	"rental-service/internal/store"
	"rental-service/internal/store/memstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFixturesFile(t *testing.T) {
	fixtures, err := readFixtures("fixtures.yaml")
	require.NoError(t, err)

	require.Len(t, fixtures.Accounts, 3)
	assert.Equal(t, "owner", fixtures.Accounts[0].Role)
	require.Len(t, fixtures.Accounts[0].Listings, 2)
	assert.Equal(t, int64(150000), *fixtures.Accounts[0].Listings[0].RatePerDayCents)
	assert.Nil(t, fixtures.Accounts[1].Listings[0].RatePerDayCents)
}

func TestReadFixturesRejectsFarmerListings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
accounts:
  - role: farmer
    email: f@example.in
    listings:
      - name: Tractor
`), 0o644))

	_, err := readFixtures(path)
	assert.ErrorContains(t, err, "only owners can have listings")
}

func TestSeedRejectsInvalidFixtures(t *testing.T) {
	st := memstore.New()
	accounts := service.NewAccountService(st, auth.NewTokenManager("secret", time.Hour, "rental-service"))

	_, err := seed(context.Background(), accounts, service.NewListingService(st), &Fixtures{
		Accounts: []AccountFixture{{Role: "farmer", Name: "Ramesh", Email: "not-an-email", Password: "farmer123", Phone: "1", Location: "Sinnar"}},
	})

	assert.ErrorContains(t, err, "invalid account not-an-email")
	_, err = st.GetAccountByEmail(context.Background(), "not-an-email")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSeedIsRepeatable(t *testing.T) {
	fixtures, err := readFixtures("fixtures.yaml")
	require.NoError(t, err)

	st := memstore.New()
	accounts := service.NewAccountService(st, auth.NewTokenManager("secret", time.Hour, "rental-service"))
	listings := service.NewListingService(st)
	ctx := context.Background()

	created, err := seed(ctx, accounts, listings, fixtures)
	require.NoError(t, err)
	assert.Equal(t, 7, created)

	created, err = seed(ctx, accounts, listings, fixtures)
	require.NoError(t, err)
	assert.Equal(t, 0, created)

	available, err := st.SearchListings(ctx, store.ListingFilter{})
	require.NoError(t, err)
	assert.Len(t, available, 4)
}
