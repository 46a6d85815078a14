package ingest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/lotwatch/internal/interfaces"
	"github.com/ternarybob/lotwatch/internal/models"
)

// fakeStore is an in-memory stand-in for the Postgres store. InTx snapshots
// state up front and restores it when the callback errors, mirroring a
// rollback.
type fakeStore struct {
	vehicles     map[string]*models.Vehicle
	listings     map[string]*models.Listing
	observations []*models.Observation
	priceEvents  []*models.PriceEvent
	nextObsID    int64

	failPriceEvents bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		vehicles: make(map[string]*models.Vehicle),
		listings: make(map[string]*models.Listing),
	}
}

func listingKey(dealerID int64, vin string) string {
	return fmt.Sprintf("%d/%s", dealerID, vin)
}

func (f *fakeStore) InTx(ctx context.Context, fn func(tx interfaces.IngestTx) error) error {
	snapshot := f.clone()
	if err := fn(&fakeTx{store: f}); err != nil {
		f.vehicles = snapshot.vehicles
		f.listings = snapshot.listings
		f.observations = snapshot.observations
		f.priceEvents = snapshot.priceEvents
		f.nextObsID = snapshot.nextObsID
		return err
	}
	return nil
}

func (f *fakeStore) clone() *fakeStore {
	out := newFakeStore()
	for vin, v := range f.vehicles {
		c := *v
		out.vehicles[vin] = &c
	}
	for key, l := range f.listings {
		c := *l
		out.listings[key] = &c
	}
	out.observations = append([]*models.Observation(nil), f.observations...)
	out.priceEvents = append([]*models.PriceEvent(nil), f.priceEvents...)
	out.nextObsID = f.nextObsID
	return out
}

type fakeTx struct {
	store *fakeStore
}

func (t *fakeTx) GetVehicle(ctx context.Context, vin string) (*models.Vehicle, error) {
	v, ok := t.store.vehicles[vin]
	if !ok {
		return nil, nil
	}
	c := *v
	return &c, nil
}

func (t *fakeTx) UpsertVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	c := *vehicle
	t.store.vehicles[vehicle.VIN] = &c
	return nil
}

func (t *fakeTx) GetListing(ctx context.Context, dealerID int64, vin string) (*models.Listing, error) {
	l, ok := t.store.listings[listingKey(dealerID, vin)]
	if !ok {
		return nil, nil
	}
	c := *l
	return &c, nil
}

func (t *fakeTx) PutListing(ctx context.Context, listing *models.Listing) error {
	c := *listing
	t.store.listings[listingKey(listing.DealerID, listing.VIN)] = &c
	return nil
}

func (t *fakeTx) InsertObservation(ctx context.Context, obs *models.Observation) error {
	t.store.nextObsID++
	obs.ID = t.store.nextObsID
	c := *obs
	t.store.observations = append(t.store.observations, &c)
	return nil
}

func (t *fakeTx) InsertPriceEvent(ctx context.Context, event *models.PriceEvent) error {
	if t.store.failPriceEvents {
		return errors.New("price_events insert refused")
	}
	event.ID = int64(len(t.store.priceEvents) + 1)
	c := *event
	t.store.priceEvents = append(t.store.priceEvents, &c)
	return nil
}

func (t *fakeTx) ListAbsenceCandidates(ctx context.Context, dealerID int64, model string, maxRank int) ([]*models.Listing, error) {
	var out []*models.Listing
	for _, l := range t.store.listings {
		if l.DealerID != dealerID {
			continue
		}
		vehicle, ok := t.store.vehicles[l.VIN]
		if !ok || vehicle.Model != model {
			continue
		}
		if l.SourceRank > maxRank {
			continue
		}
		c := *l
		out = append(out, &c)
	}
	return out, nil
}

func dec(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func intp(v int) *int {
	return &v
}

func newTestService(store *fakeStore) interfaces.IngestService {
	return NewService(store, 50, arbor.NewLogger())
}

var (
	t0 = time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
	t1 = time.Date(2026, 2, 11, 8, 0, 0, 0, time.UTC)
	t2 = time.Date(2026, 2, 12, 8, 0, 0, 0, time.UTC)
)

func firstRow() *models.IngestRow {
	return &models.IngestRow{
		DealerID:        1,
		VIN:             "JTENU5JR4R5299999",
		AdvertisedPrice: dec("47500"),
		MSRP:            dec("51230"),
		Status:          models.ListingStatusAvailable,
		VDPURL:          "https://www.exampletoyota.com/inventory/JTENU5JR4R5299999",
		StockNumber:     "T40112",
		ObservedAt:      t0,
		JobID:           uuid.MustParse("0c1e3c0a-8b1c-4a3e-9a52-6f50c4f0a001"),
		Source:          models.SourceInventoryList,
		SourceRank:      intp(50),
		Vehicle: &models.VehicleAttrs{
			Make:  "Toyota",
			Model: "4Runner",
			Year:  intp(2024),
			MSRP:  dec("51230"),
		},
	}
}

func TestIngestFirstObservation(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	stats, err := svc.IngestRows(context.Background(), []*models.IngestRow{firstRow()})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Observations)
	assert.Equal(t, 1, stats.ListingsUpserted)
	assert.Equal(t, 0, stats.PriceEvents)

	vehicle := store.vehicles["JTENU5JR4R5299999"]
	require.NotNil(t, vehicle)
	assert.Equal(t, "Toyota", vehicle.Make)
	assert.Equal(t, "4Runner", vehicle.Model)
	require.NotNil(t, vehicle.MSRP)
	assert.True(t, vehicle.MSRP.Equal(decimal.RequireFromString("51230")))

	listing := store.listings[listingKey(1, "JTENU5JR4R5299999")]
	require.NotNil(t, listing)
	require.NotNil(t, listing.AdvertisedPrice)
	assert.True(t, listing.AdvertisedPrice.Equal(decimal.RequireFromString("47500")))
	require.NotNil(t, listing.PriceDeltaMSRP)
	assert.True(t, listing.PriceDeltaMSRP.Equal(decimal.RequireFromString("-3730")))
	assert.Equal(t, models.ListingStatusAvailable, listing.Status)
	assert.Equal(t, 50, listing.SourceRank)
	require.NotNil(t, listing.FirstSeenAt)
	require.NotNil(t, listing.LastSeenAt)
	assert.True(t, listing.FirstSeenAt.Equal(t0))
	assert.True(t, listing.LastSeenAt.Equal(t0))

	require.Len(t, store.observations, 1)
	obs := store.observations[0]
	assert.Equal(t, "JTENU5JR4R5299999", obs.VIN)
	assert.True(t, obs.ObservedAt.Equal(t0))
	assert.Empty(t, store.priceEvents)
}

func TestIngestPriceChangeEmitsEvent(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.IngestRows(ctx, []*models.IngestRow{firstRow()})
	require.NoError(t, err)

	second := firstRow()
	second.AdvertisedPrice = dec("46950")
	second.ObservedAt = t1
	second.SourceRank = intp(10)

	stats, err := svc.IngestRows(ctx, []*models.IngestRow{second})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Observations)
	assert.Equal(t, 1, stats.PriceEvents)

	listing := store.listings[listingKey(1, "JTENU5JR4R5299999")]
	require.NotNil(t, listing.AdvertisedPrice)
	assert.True(t, listing.AdvertisedPrice.Equal(decimal.RequireFromString("46950")))
	assert.Equal(t, 10, listing.SourceRank)
	assert.True(t, listing.FirstSeenAt.Equal(t0))
	assert.True(t, listing.LastSeenAt.Equal(t1))

	require.Len(t, store.priceEvents, 1)
	event := store.priceEvents[0]
	assert.True(t, event.OldPrice.Equal(decimal.RequireFromString("47500")))
	assert.True(t, event.NewPrice.Equal(decimal.RequireFromString("46950")))
	assert.True(t, event.Delta.Equal(decimal.RequireFromString("-550")))
	require.NotNil(t, event.Pct)
	assert.True(t, event.Pct.Equal(decimal.RequireFromString("-1.16")), "got pct %s", event.Pct)
	assert.True(t, event.ObservedAt.Equal(t1))
}

func TestIngestIdempotentReplay(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.IngestRows(ctx, []*models.IngestRow{firstRow()})
	require.NoError(t, err)

	before := *store.listings[listingKey(1, "JTENU5JR4R5299999")]

	stats, err := svc.IngestRows(ctx, []*models.IngestRow{firstRow()})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Observations)
	assert.Equal(t, 0, stats.PriceEvents)

	after := store.listings[listingKey(1, "JTENU5JR4R5299999")]
	assert.True(t, after.AdvertisedPrice.Equal(*before.AdvertisedPrice))
	assert.True(t, after.FirstSeenAt.Equal(*before.FirstSeenAt))
	assert.True(t, after.LastSeenAt.Equal(*before.LastSeenAt))
	assert.Equal(t, before.SourceRank, after.SourceRank)
	assert.Len(t, store.observations, 2)
	assert.Empty(t, store.priceEvents)
}

func TestIngestRankNeverRaises(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	trusted := firstRow()
	trusted.SourceRank = intp(10)
	_, err := svc.IngestRows(ctx, []*models.IngestRow{trusted})
	require.NoError(t, err)

	weaker := firstRow()
	weaker.SourceRank = intp(50)
	weaker.ObservedAt = t1
	_, err = svc.IngestRows(ctx, []*models.IngestRow{weaker})
	require.NoError(t, err)
	assert.Equal(t, 10, store.listings[listingKey(1, "JTENU5JR4R5299999")].SourceRank)

	unranked := firstRow()
	unranked.SourceRank = nil
	unranked.ObservedAt = t2
	_, err = svc.IngestRows(ctx, []*models.IngestRow{unranked})
	require.NoError(t, err)
	assert.Equal(t, 10, store.listings[listingKey(1, "JTENU5JR4R5299999")].SourceRank)
}

func TestIngestMSRPFallbackAnnotatesPayload(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	row := firstRow()
	row.AdvertisedPrice = nil
	row.Payload = map[string]any{"firecrawl": map[string]any{"backend": "DEALER_COM"}}

	_, err := svc.IngestRows(context.Background(), []*models.IngestRow{row})
	require.NoError(t, err)

	listing := store.listings[listingKey(1, "JTENU5JR4R5299999")]
	require.NotNil(t, listing.AdvertisedPrice)
	assert.True(t, listing.AdvertisedPrice.Equal(decimal.RequireFromString("51230")))
	require.NotNil(t, listing.PriceDeltaMSRP)
	assert.True(t, listing.PriceDeltaMSRP.IsZero())

	require.Len(t, store.observations, 1)
	obs := store.observations[0]
	assumptions, ok := obs.Payload["assumptions"].(map[string]any)
	require.True(t, ok, "payload should carry assumptions, got %#v", obs.Payload)
	assert.Equal(t, true, assumptions["ad_price_equals_msrp"])
	assert.Contains(t, obs.Payload, "firecrawl")

	// The caller's map must not have been touched.
	assert.NotContains(t, row.Payload, "assumptions")
}

func TestIngestVINNormalizedUppercase(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	row := firstRow()
	row.VIN = " jtenu5jr4r5299999 "

	_, err := svc.IngestRows(context.Background(), []*models.IngestRow{row})
	require.NoError(t, err)

	assert.Contains(t, store.vehicles, "JTENU5JR4R5299999")
	assert.Contains(t, store.listings, listingKey(1, "JTENU5JR4R5299999"))
}

func TestIngestRowWithoutVINFailsBatch(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	rows := []*models.IngestRow{firstRow(), {DealerID: 1, VIN: "   "}}
	_, err := svc.IngestRows(context.Background(), rows)
	require.Error(t, err)

	// The batch rolled back; the valid first row must not have landed.
	assert.Empty(t, store.observations)
	assert.Empty(t, store.listings)
}

func TestIngestStoreErrorRollsBackBatch(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.IngestRows(ctx, []*models.IngestRow{firstRow()})
	require.NoError(t, err)

	store.failPriceEvents = true
	second := firstRow()
	second.AdvertisedPrice = dec("46950")
	second.ObservedAt = t1

	_, err = svc.IngestRows(ctx, []*models.IngestRow{second})
	require.Error(t, err)

	listing := store.listings[listingKey(1, "JTENU5JR4R5299999")]
	assert.True(t, listing.AdvertisedPrice.Equal(decimal.RequireFromString("47500")),
		"listing update should have rolled back with the price event")
	assert.Len(t, store.observations, 1)
	assert.Empty(t, store.priceEvents)
}

func TestIngestSeenWindowOverrides(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.IngestRows(ctx, []*models.IngestRow{firstRow()})
	require.NoError(t, err)

	earlier := t0.Add(-48 * time.Hour)
	later := t0.Add(72 * time.Hour)
	imported := firstRow()
	imported.Source = models.SourceImport
	imported.ObservedAt = t1
	imported.FirstSeenAt = &earlier
	imported.LastSeenAt = &later

	_, err = svc.IngestRows(ctx, []*models.IngestRow{imported})
	require.NoError(t, err)

	listing := store.listings[listingKey(1, "JTENU5JR4R5299999")]
	assert.True(t, listing.FirstSeenAt.Equal(earlier))
	assert.True(t, listing.LastSeenAt.Equal(later))
	assert.True(t, !listing.FirstSeenAt.After(*listing.LastSeenAt))
}

func TestIngestReobservationRevivesMissingListing(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.IngestRows(ctx, []*models.IngestRow{firstRow()})
	require.NoError(t, err)

	_, _, err = svc.MarkAbsent(ctx, 1, "4Runner", map[string]bool{}, t1)
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusMissing, store.listings[listingKey(1, "JTENU5JR4R5299999")].Status)

	// A status-less re-observation resets the listing to available.
	revived := firstRow()
	revived.Status = ""
	revived.ObservedAt = t2
	_, err = svc.IngestRows(ctx, []*models.IngestRow{revived})
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusAvailable, store.listings[listingKey(1, "JTENU5JR4R5299999")].Status)
}

func TestIngestVehicleMergeKeepsAbsentFields(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	full := firstRow()
	full.Vehicle.Trim = "TRD Off-Road"
	full.Vehicle.ExteriorColor = "Ice Cap"
	_, err := svc.IngestRows(ctx, []*models.IngestRow{full})
	require.NoError(t, err)

	sparse := firstRow()
	sparse.ObservedAt = t1
	sparse.Vehicle = &models.VehicleAttrs{Model: "4Runner", InteriorColor: "Black SofTex"}
	_, err = svc.IngestRows(ctx, []*models.IngestRow{sparse})
	require.NoError(t, err)

	vehicle := store.vehicles["JTENU5JR4R5299999"]
	assert.Equal(t, "TRD Off-Road", vehicle.Trim)
	assert.Equal(t, "Ice Cap", vehicle.ExteriorColor)
	assert.Equal(t, "Black SofTex", vehicle.InteriorColor)
	assert.Equal(t, "Toyota", vehicle.Make)
	require.NotNil(t, vehicle.Year)
	assert.Equal(t, 2024, *vehicle.Year)
}

func TestIngestEmptyBatch(t *testing.T) {
	svc := newTestService(newFakeStore())

	stats, err := svc.IngestRows(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Observations)
	assert.Equal(t, 0, stats.ListingsUpserted)
	assert.Equal(t, 0, stats.PriceEvents)
}

func TestIngestObservedAtDefaultsToNow(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	row := firstRow()
	row.ObservedAt = time.Time{}

	before := time.Now().UTC()
	_, err := svc.IngestRows(context.Background(), []*models.IngestRow{row})
	require.NoError(t, err)
	after := time.Now().UTC()

	obs := store.observations[0]
	assert.False(t, obs.ObservedAt.Before(before))
	assert.False(t, obs.ObservedAt.After(after))
}
