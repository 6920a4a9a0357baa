// internal/workers/recommendation/source-venues/handler_test.go
package sourcevenues

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "venueflow/internal/common/errors"
	"venueflow/internal/common/geo"
	"venueflow/internal/common/logger"
	"venueflow/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeCatalog struct {
	candidates []models.VenueCandidate
	err        error
}

func (f *fakeCatalog) SearchNearby(_ context.Context, _ models.Location, _ int, _ []string) ([]models.VenueCandidate, error) {
	return f.candidates, f.err
}

type fakeExternal struct {
	candidates []models.VenueCandidate
	err        error
	block      bool
}

func (f *fakeExternal) SearchNearby(ctx context.Context, _, _ float64, _ int, _ string) ([]models.VenueCandidate, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.candidates, f.err
}

func (f *fakeExternal) DistanceMatrix(_ context.Context, origins []models.Location, _ models.Location) ([]geo.DistanceEntry, error) {
	entries := make([]geo.DistanceEntry, len(origins))
	return entries, nil
}

func createTestConfig() *Config {
	return &Config{
		ExternalTimeout:  50 * time.Millisecond,
		DedupeToleranceM: 50,
		MaxCandidates:    50,
	}
}

func catalogVenue(id, name string, lat, lng float64) models.VenueCandidate {
	return models.VenueCandidate{ID: id, Name: name, Lat: lat, Lng: lng, Source: models.SourceDatabase}
}

func externalVenue(placeID, name string, lat, lng float64) models.VenueCandidate {
	return models.VenueCandidate{
		ID: "ta-" + placeID, ExternalID: placeID, Name: name,
		Lat: lat, Lng: lng, Source: models.SourceTrackAsia,
	}
}

func testInput() *Input {
	return &Input{
		EventID: "evt-1",
		RunID:   "run-1",
		Center:  models.Location{Lat: 13.7563, Lng: 100.5018},
		Aggregated: models.AggregatedPreferences{
			Cuisines:     []string{"thai"},
			RadiusMeters: 2000,
		},
	}
}

// ==========================
// Tests
// ==========================

func TestHandler_Execute_MergesBothChannels(t *testing.T) {
	catalog := &fakeCatalog{candidates: []models.VenueCandidate{
		catalogVenue("v-1", "Blue Ginger", 13.7563, 100.5018),
		catalogVenue("v-2", "Som Tam House", 13.7570, 100.5022),
	}}
	external := &fakeExternal{candidates: []models.VenueCandidate{
		externalVenue("ta-9", "River Cafe", 13.7590, 100.5030),
	}}

	handler := NewHandler(createTestConfig(), catalog, external, logger.NewTestLogger(t))
	output, err := handler.Execute(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, 2, output.FromDatabase)
	assert.Equal(t, 1, output.FromTrackAsia)
	assert.Len(t, output.Candidates, 3)
	assert.False(t, output.ExternalDegraded)
	// Internal candidates come first in the merged list.
	assert.Equal(t, "v-1", output.Candidates[0].ID)
}

func TestHandler_Execute_Dedupe(t *testing.T) {
	t.Run("same name within tolerance collapses to the catalog record", func(t *testing.T) {
		catalog := &fakeCatalog{candidates: []models.VenueCandidate{
			catalogVenue("v-1", "Blue Ginger", 13.7563, 100.5018),
		}}
		// ~20m away with a case-variant name.
		external := &fakeExternal{candidates: []models.VenueCandidate{
			externalVenue("p-1", "blue  ginger", 13.75648, 100.50183),
		}}

		handler := NewHandler(createTestConfig(), catalog, external, logger.NewTestLogger(t))
		output, err := handler.Execute(context.Background(), testInput())
		require.NoError(t, err)

		require.Len(t, output.Candidates, 1)
		assert.Equal(t, models.SourceDatabase, output.Candidates[0].Source)
		assert.Equal(t, 1, output.DuplicatesRemoved)
	})

	t.Run("same name far apart stays distinct", func(t *testing.T) {
		catalog := &fakeCatalog{candidates: []models.VenueCandidate{
			catalogVenue("v-1", "Blue Ginger", 13.7563, 100.5018),
		}}
		// Same chain, other side of town.
		external := &fakeExternal{candidates: []models.VenueCandidate{
			externalVenue("p-1", "Blue Ginger", 13.7700, 100.5200),
		}}

		handler := NewHandler(createTestConfig(), catalog, external, logger.NewTestLogger(t))
		output, err := handler.Execute(context.Background(), testInput())
		require.NoError(t, err)

		assert.Len(t, output.Candidates, 2)
		assert.Zero(t, output.DuplicatesRemoved)
	})

	t.Run("matching external id collapses regardless of name", func(t *testing.T) {
		internal := catalogVenue("v-1", "Blue Ginger Bistro", 13.7563, 100.5018)
		internal.ExternalID = "p-1"
		catalog := &fakeCatalog{candidates: []models.VenueCandidate{internal}}
		external := &fakeExternal{candidates: []models.VenueCandidate{
			externalVenue("p-1", "Blue Ginger", 13.7563, 100.5018),
		}}

		handler := NewHandler(createTestConfig(), catalog, external, logger.NewTestLogger(t))
		output, err := handler.Execute(context.Background(), testInput())
		require.NoError(t, err)

		require.Len(t, output.Candidates, 1)
		assert.Equal(t, "v-1", output.Candidates[0].ID)
	})
}

func TestHandler_Execute_ExternalTimeout(t *testing.T) {
	catalog := &fakeCatalog{candidates: []models.VenueCandidate{
		catalogVenue("v-1", "Blue Ginger", 13.7563, 100.5018),
		catalogVenue("v-2", "Som Tam House", 13.7570, 100.5022),
		catalogVenue("v-3", "River Cafe", 13.7580, 100.5025),
		catalogVenue("v-4", "Night Market Grill", 13.7590, 100.5030),
	}}
	external := &fakeExternal{block: true}

	handler := NewHandler(createTestConfig(), catalog, external, logger.NewTestLogger(t))
	output, err := handler.Execute(context.Background(), testInput())
	require.NoError(t, err)

	assert.True(t, output.ExternalDegraded)
	assert.Equal(t, 0, output.FromTrackAsia)
	assert.Equal(t, 4, output.FromDatabase)
	assert.Len(t, output.Candidates, 4)
}

func TestHandler_Execute_ExternalFailure(t *testing.T) {
	catalog := &fakeCatalog{candidates: []models.VenueCandidate{
		catalogVenue("v-1", "Blue Ginger", 13.7563, 100.5018),
	}}
	external := &fakeExternal{err: errors.New("upstream 503")}

	handler := NewHandler(createTestConfig(), catalog, external, logger.NewTestLogger(t))
	output, err := handler.Execute(context.Background(), testInput())
	require.NoError(t, err)

	assert.True(t, output.ExternalDegraded)
	assert.Len(t, output.Candidates, 1)
}

func TestHandler_Execute_BothChannelsEmpty(t *testing.T) {
	handler := NewHandler(createTestConfig(), &fakeCatalog{}, &fakeExternal{}, logger.NewTestLogger(t))

	_, err := handler.Execute(context.Background(), testInput())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNoCandidatesFound, apperrors.CodeOf(err))
	assert.True(t, apperrors.IsTerminalForRun(err))
}

func TestHandler_Execute_CapsCandidates(t *testing.T) {
	var many []models.VenueCandidate
	for i := 0; i < 80; i++ {
		many = append(many, catalogVenue(
			"v-"+string(rune('a'+i%26))+string(rune('a'+i/26)),
			"Venue "+string(rune('a'+i%26))+string(rune('a'+i/26)),
			13.75+float64(i)*0.001, 100.50,
		))
	}
	handler := NewHandler(createTestConfig(), &fakeCatalog{candidates: many}, &fakeExternal{}, logger.NewTestLogger(t))

	output, err := handler.Execute(context.Background(), testInput())
	require.NoError(t, err)
	assert.Len(t, output.Candidates, 50)
}

func TestHaversineMeters(t *testing.T) {
	// Bangkok city pillar to Wat Pho, roughly 900m.
	d := haversineMeters(13.7527, 100.4940, 13.7465, 100.4930)
	assert.InDelta(t, 690, d, 120)

	assert.Zero(t, haversineMeters(13.75, 100.50, 13.75, 100.50))
}
