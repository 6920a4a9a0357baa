// internal/workers/recommendation/source-venues/handler.go
package sourcevenues

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"

	apperrors "venueflow/internal/common/errors"
	"venueflow/internal/common/geo"
	"venueflow/internal/common/logger"
	"venueflow/internal/common/metrics"
	"venueflow/internal/models"
)

const (
	TaskType = "source-venues"
)

// Handler gathers venue candidates from the internal catalog and the external
// geo provider concurrently. The external channel runs under its own timeout;
// a timeout or failure there degrades the result instead of failing the run.
// The run only fails when both channels produced nothing.
type Handler struct {
	config   *Config
	catalog  Catalog
	external geo.VenueSource
	logger   logger.Logger
}

func NewHandler(config *Config, catalog Catalog, external geo.VenueSource, log logger.Logger) *Handler {
	return &Handler{
		config:   config,
		catalog:  catalog,
		external: external,
		logger: log.WithFields(map[string]interface{}{
			"taskType": TaskType,
		}),
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		internal []models.VenueCandidate
		ext      []models.VenueCandidate
	)
	output := &Output{}

	categoryHint := ""
	if len(input.Aggregated.Cuisines) > 0 {
		categoryHint = input.Aggregated.Cuisines[0]
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		found, err := h.catalog.SearchNearby(ctx, input.Center, input.Aggregated.RadiusMeters, input.Aggregated.Cuisines)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			output.CatalogDegraded = true
			h.logger.Warn("internal catalog search failed", map[string]interface{}{
				"eventId": input.EventID,
				"error":   err.Error(),
			})
			return
		}
		internal = found
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		extCtx, cancel := context.WithTimeout(ctx, h.config.ExternalTimeout)
		defer cancel()

		found, err := h.external.SearchNearby(extCtx, input.Center.Lat, input.Center.Lng, input.Aggregated.RadiusMeters, categoryHint)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			output.ExternalDegraded = true
			metrics.VenueSourceDegraded.WithLabelValues(models.SourceTrackAsia).Inc()
			if errors.Is(err, context.DeadlineExceeded) {
				h.logger.Warn("external venue search timed out", map[string]interface{}{
					"eventId": input.EventID,
					"timeout": h.config.ExternalTimeout.String(),
				})
			} else {
				h.logger.Warn("external venue search failed", map[string]interface{}{
					"eventId": input.EventID,
					"error":   err.Error(),
				})
			}
			return
		}
		ext = found
	}()

	wg.Wait()

	if output.CatalogDegraded {
		metrics.VenueSourceDegraded.WithLabelValues(models.SourceDatabase).Inc()
	}

	output.FromDatabase = len(internal)
	output.FromTrackAsia = len(ext)

	merged, removed := h.merge(internal, ext)
	output.DuplicatesRemoved = removed

	if len(merged) == 0 {
		return nil, apperrors.NewNoCandidatesError(input.EventID)
	}

	if len(merged) > h.config.MaxCandidates {
		merged = merged[:h.config.MaxCandidates]
	}
	output.Candidates = merged

	h.logger.Info("venue sourcing completed", map[string]interface{}{
		"eventId":          input.EventID,
		"fromDatabase":     output.FromDatabase,
		"fromTrackAsia":    output.FromTrackAsia,
		"duplicates":       removed,
		"externalDegraded": output.ExternalDegraded,
	})

	return output, nil
}

// merge concatenates both channels with internal candidates first, dropping
// external entries that duplicate an internal one. Two candidates are the
// same venue when their external IDs match, or when their normalized names
// match and they sit within the dedupe tolerance of each other.
func (h *Handler) merge(internal, external []models.VenueCandidate) ([]models.VenueCandidate, int) {
	merged := make([]models.VenueCandidate, 0, len(internal)+len(external))
	merged = append(merged, internal...)

	removed := 0
	for _, cand := range external {
		if h.isDuplicate(cand, internal) {
			removed++
			continue
		}
		merged = append(merged, cand)
	}
	return merged, removed
}

func (h *Handler) isDuplicate(cand models.VenueCandidate, existing []models.VenueCandidate) bool {
	for _, other := range existing {
		if cand.ExternalID != "" && cand.ExternalID == other.ExternalID {
			return true
		}
		if normalizeName(cand.Name) == normalizeName(other.Name) &&
			haversineMeters(cand.Lat, cand.Lng, other.Lat, other.Lng) <= h.config.DedupeToleranceM {
			return true
		}
	}
	return false
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

const earthRadiusM = 6371000

func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
