package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/lotwatch/internal/models"
)

func seedListing(t *testing.T, store *fakeStore, vin string, rank int) {
	t.Helper()
	row := firstRow()
	row.VIN = vin
	row.SourceRank = intp(rank)
	svc := newTestService(store)
	_, err := svc.IngestRows(context.Background(), []*models.IngestRow{row})
	require.NoError(t, err)
}

func TestMarkAbsentTwoMissRule(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()
	seedListing(t, store, "JTENU5JR4R5299999", 50)

	key := listingKey(1, "JTENU5JR4R5299999")

	// First miss: available -> missing.
	missing, sold, err := svc.MarkAbsent(ctx, 1, "4Runner", map[string]bool{}, t1)
	require.NoError(t, err)
	assert.Equal(t, 1, missing)
	assert.Equal(t, 0, sold)
	assert.Equal(t, models.ListingStatusMissing, store.listings[key].Status)

	// Second miss: missing -> sold.
	missing, sold, err = svc.MarkAbsent(ctx, 1, "4Runner", map[string]bool{}, t2)
	require.NoError(t, err)
	assert.Equal(t, 0, missing)
	assert.Equal(t, 1, sold)
	assert.Equal(t, models.ListingStatusSold, store.listings[key].Status)

	// Third miss: sold stays sold.
	missing, sold, err = svc.MarkAbsent(ctx, 1, "4Runner", map[string]bool{}, t2.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, missing)
	assert.Equal(t, 0, sold)
	assert.Equal(t, models.ListingStatusSold, store.listings[key].Status)
}

func TestMarkAbsentSkipsObservedVINs(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()
	seedListing(t, store, "JTENU5JR4R5299999", 50)
	seedListing(t, store, "JTEABFAJXTK051728", 50)

	observed := map[string]bool{"JTENU5JR4R5299999": true}
	missing, sold, err := svc.MarkAbsent(ctx, 1, "4Runner", observed, t1)
	require.NoError(t, err)
	assert.Equal(t, 1, missing)
	assert.Equal(t, 0, sold)

	assert.Equal(t, models.ListingStatusAvailable, store.listings[listingKey(1, "JTENU5JR4R5299999")].Status)
	assert.Equal(t, models.ListingStatusMissing, store.listings[listingKey(1, "JTEABFAJXTK051728")].Status)
}

func TestMarkAbsentIgnoresUploadRankListings(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	// Rank 80 marks an upload-origin listing; list scrapes must not
	// transition it.
	seedListing(t, store, "JTENU5JR4R5299999", 80)

	missing, sold, err := svc.MarkAbsent(ctx, 1, "4Runner", map[string]bool{}, t1)
	require.NoError(t, err)
	assert.Equal(t, 0, missing)
	assert.Equal(t, 0, sold)
	assert.Equal(t, models.ListingStatusAvailable, store.listings[listingKey(1, "JTENU5JR4R5299999")].Status)
}

func TestMarkAbsentScopedToDealerAndModel(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	seedListing(t, store, "JTENU5JR4R5299999", 50)

	otherDealer := firstRow()
	otherDealer.DealerID = 2
	otherDealer.VIN = "JTEAAAAA0AA000001"
	_, err := svc.IngestRows(ctx, []*models.IngestRow{otherDealer})
	require.NoError(t, err)

	otherModel := firstRow()
	otherModel.VIN = "JTEBBBBB0BB000002"
	otherModel.Vehicle.Model = "Tacoma"
	_, err = svc.IngestRows(ctx, []*models.IngestRow{otherModel})
	require.NoError(t, err)

	missing, _, err := svc.MarkAbsent(ctx, 1, "4Runner", map[string]bool{}, t1)
	require.NoError(t, err)
	assert.Equal(t, 1, missing)

	assert.Equal(t, models.ListingStatusMissing, store.listings[listingKey(1, "JTENU5JR4R5299999")].Status)
	assert.Equal(t, models.ListingStatusAvailable, store.listings[listingKey(2, "JTEAAAAA0AA000001")].Status)
	assert.Equal(t, models.ListingStatusAvailable, store.listings[listingKey(1, "JTEBBBBB0BB000002")].Status)
}

func TestMarkAbsentSoldKeepsLastSeen(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()
	seedListing(t, store, "JTENU5JR4R5299999", 50)

	key := listingKey(1, "JTENU5JR4R5299999")
	lastSeen := *store.listings[key].LastSeenAt

	_, _, err := svc.MarkAbsent(ctx, 1, "4Runner", map[string]bool{}, t1)
	require.NoError(t, err)
	_, _, err = svc.MarkAbsent(ctx, 1, "4Runner", map[string]bool{}, t2)
	require.NoError(t, err)

	// The sold transition records when the vehicle was really last seen,
	// not when the absence pass ran.
	assert.True(t, store.listings[key].LastSeenAt.Equal(lastSeen))
}
