// internal/workers/recommendation/source-venues/fallbackcatalog.go
package sourcevenues

import (
	"context"

	"venueflow/internal/common/logger"
	"venueflow/internal/models"
)

// PlaceTable is the relational read of the place catalog, the same rows the
// search index is built from.
type PlaceTable interface {
	CatalogSearch(ctx context.Context, center models.Location, radiusMeters int, categories []string) ([]models.VenueCandidate, error)
}

// FallbackCatalog serves the internal channel from the search index and falls
// back to the place table when the index errors.
type FallbackCatalog struct {
	primary   Catalog
	secondary PlaceTable
	logger    logger.Logger
}

func NewFallbackCatalog(primary Catalog, secondary PlaceTable, log logger.Logger) *FallbackCatalog {
	return &FallbackCatalog{
		primary:   primary,
		secondary: secondary,
		logger:    log.WithFields(map[string]interface{}{"component": "catalog"}),
	}
}

func (c *FallbackCatalog) SearchNearby(ctx context.Context, center models.Location, radiusMeters int, cuisines []string) ([]models.VenueCandidate, error) {
	found, err := c.primary.SearchNearby(ctx, center, radiusMeters, cuisines)
	if err == nil {
		return found, nil
	}

	c.logger.Warn("primary catalog failed, reading place table instead", map[string]interface{}{
		"error": err.Error(),
	})
	rows, err := c.secondary.CatalogSearch(ctx, center, radiusMeters, cuisines)
	if err != nil {
		return nil, err
	}

	// The place table only prefilters by bounding box; the exact radius cut
	// happens here.
	out := make([]models.VenueCandidate, 0, len(rows))
	for _, cand := range rows {
		if haversineMeters(center.Lat, center.Lng, cand.Lat, cand.Lng) <= float64(radiusMeters) {
			out = append(out, cand)
		}
	}
	return out, nil
}
