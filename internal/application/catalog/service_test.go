package catalog

import (
	"context"
	"testing"
	"time"

	"atelier-backend/internal/application/locks"
	"atelier-backend/internal/domain"
	"atelier-backend/internal/infrastructure/database"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func setupCatalogTest(t *testing.T) *Service {
	db, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	return &Service{DB: db, Locks: locks.New(time.Second), Now: func() time.Time { return testNow }}
}

func TestCreateArtwork_Validates(t *testing.T) {
	svc := setupCatalogTest(t)
	ctx := context.Background()
	seller := uuid.New()

	_, err := svc.CreateArtwork(ctx, ArtworkInput{SellerID: seller, Title: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidArtwork)

	bad := int64(0)
	_, err = svc.CreateArtwork(ctx, ArtworkInput{SellerID: seller, Title: "Nocturne", BuyNowPrice: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidArtwork)

	_, err = svc.CreateArtwork(ctx, ArtworkInput{SellerID: seller, Title: "Nocturne", PurchaseFeeRate: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, domain.ErrInvalidArtwork)

	price := int64(250_000)
	art, err := svc.CreateArtwork(ctx, ArtworkInput{SellerID: seller, Title: "Nocturne", BuyNowPrice: &price})
	require.NoError(t, err)
	got, err := svc.GetArtwork(ctx, art.ArtworkID)
	require.NoError(t, err)
	assert.Equal(t, domain.ArtworkAvailable, got.Status)
	assert.Equal(t, price, *got.BuyNowPrice)

	_, err = svc.GetArtwork(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrArtworkNotFound)
}

func TestCreateAuction(t *testing.T) {
	svc := setupCatalogTest(t)
	ctx := context.Background()
	art, err := svc.CreateArtwork(ctx, ArtworkInput{SellerID: uuid.New(), Title: "Harbour"})
	require.NoError(t, err)

	in := AuctionInput{
		ArtworkID:        art.ArtworkID,
		StartPrice:       100_000,
		BuyerPremiumRate: decimal.RequireFromString("0.15"),
		StartTime:        testNow.Add(time.Hour),
		EndTime:          testNow.Add(2 * time.Hour),
	}
	a, err := svc.CreateAuction(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionScheduled, a.State)
	assert.Equal(t, "standard", a.BidIncrementRule)
	assert.Equal(t, int64(100_000), a.CurrentPrice)

	got, err := svc.GetArtwork(ctx, art.ArtworkID)
	require.NoError(t, err)
	assert.Equal(t, domain.ArtworkInAuction, got.Status)

	_, err = svc.CreateAuction(ctx, in)
	assert.ErrorIs(t, err, domain.ErrArtworkNotAvailable)

	var events int64
	require.NoError(t, svc.DB.Model(&domain.AuctionEvent{}).Where("auction_id = ?", a.AuctionID).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestCreateAuction_StartsImmediately(t *testing.T) {
	svc := setupCatalogTest(t)
	art, err := svc.CreateArtwork(context.Background(), ArtworkInput{SellerID: uuid.New(), Title: "Dune"})
	require.NoError(t, err)

	a, err := svc.CreateAuction(context.Background(), AuctionInput{
		ArtworkID:        art.ArtworkID,
		StartPrice:       1_000,
		BidIncrementRule: "flat",
		StartTime:        testNow.Add(-time.Minute),
		EndTime:          testNow.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionActive, a.State)
}

func TestCreateAuction_RejectsBadParameters(t *testing.T) {
	svc := setupCatalogTest(t)
	base := AuctionInput{
		ArtworkID:  uuid.New(),
		StartPrice: 1_000,
		StartTime:  testNow,
		EndTime:    testNow.Add(time.Hour),
	}
	cases := map[string]func(in *AuctionInput){
		"zero start price": func(in *AuctionInput) { in.StartPrice = 0 },
		"unknown rule":     func(in *AuctionInput) { in.BidIncrementRule = "sprint" },
		"premium of one":   func(in *AuctionInput) { in.BuyerPremiumRate = decimal.NewFromInt(1) },
		"negative premium": func(in *AuctionInput) { in.BuyerPremiumRate = decimal.RequireFromString("-0.1") },
		"end before start": func(in *AuctionInput) { in.EndTime = in.StartTime.Add(-time.Second) },
		"already over":     func(in *AuctionInput) { in.StartTime, in.EndTime = testNow.Add(-2*time.Hour), testNow.Add(-time.Hour) },
	}
	for name, mutate := range cases {
		in := base
		mutate(&in)
		_, err := svc.CreateAuction(context.Background(), in)
		assert.ErrorIs(t, err, domain.ErrInvalidAuction, name)
	}

	_, err := svc.CreateAuction(context.Background(), base)
	assert.ErrorIs(t, err, domain.ErrArtworkNotFound)
}
