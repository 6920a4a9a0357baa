// internal/common/geo/trackasia.go

// Package geo wraps the TrackAsia place-search and routing APIs. Both calls
// may fail or time out; callers must treat either as recoverable.
package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	commonhttp "venueflow/internal/common/http"
	"venueflow/internal/common/logger"
	"venueflow/internal/models"
)

// VenueSource is the collaborator contract consumed by the sourcing stage.
type VenueSource interface {
	SearchNearby(ctx context.Context, lat, lng float64, radiusMeters int, categoryHint string) ([]models.VenueCandidate, error)
	DistanceMatrix(ctx context.Context, origins []models.Location, destination models.Location) ([]DistanceEntry, error)
}

// DistanceEntry is the per-origin result of a distance-matrix call.
type DistanceEntry struct {
	DistanceMeters  float64 `json:"distanceMeters"`
	DurationSeconds float64 `json:"durationSeconds"`
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *commonhttp.Client
	logger     logger.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, log logger.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: commonhttp.NewClient(timeout),
		logger:     log.WithFields(map[string]interface{}{"component": "trackasia"}),
	}
}

type searchResponse struct {
	Results []struct {
		PlaceID  string   `json:"place_id"`
		Name     string   `json:"name"`
		Category string   `json:"category"`
		Tags     []string `json:"tags"`
		Rating   *float64 `json:"rating"`
		Price    *int     `json:"price_level"`
		Address  string   `json:"address"`
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"results"`
	Status string `json:"status"`
}

// SearchNearby returns candidate venues around a center point.
func (c *Client) SearchNearby(ctx context.Context, lat, lng float64, radiusMeters int, categoryHint string) ([]models.VenueCandidate, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lng", strconv.FormatFloat(lng, 'f', 6, 64))
	q.Set("radius", strconv.Itoa(radiusMeters))
	q.Set("key", c.apiKey)
	if categoryHint != "" {
		q.Set("category", categoryHint)
	}

	endpoint := fmt.Sprintf("%s/place/nearby?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, context.DeadlineExceeded
		}
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("place search failed (status %d): %s", resp.StatusCode, string(body))
	}

	var searchResp searchResponse
	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if searchResp.Status != "" && searchResp.Status != "OK" {
		return nil, fmt.Errorf("place search returned status %s", searchResp.Status)
	}

	candidates := make([]models.VenueCandidate, 0, len(searchResp.Results))
	for _, r := range searchResp.Results {
		candidates = append(candidates, models.VenueCandidate{
			ID:         "ta-" + r.PlaceID,
			ExternalID: r.PlaceID,
			Name:       r.Name,
			Lat:        r.Location.Lat,
			Lng:        r.Location.Lng,
			Category:   r.Category,
			Tags:       r.Tags,
			Rating:     r.Rating,
			PriceLevel: r.Price,
			Address:    r.Address,
			Source:     models.SourceTrackAsia,
		})
	}

	c.logger.Debug("place search completed", map[string]interface{}{
		"resultCount": len(candidates),
		"radius":      radiusMeters,
	})

	return candidates, nil
}

type matrixResponse struct {
	Rows []struct {
		Elements []struct {
			Distance struct {
				Value float64 `json:"value"`
			} `json:"distance"`
			Duration struct {
				Value float64 `json:"value"`
			} `json:"duration"`
			Status string `json:"status"`
		} `json:"elements"`
	} `json:"rows"`
}

// DistanceMatrix returns per-origin travel distance and duration to one
// destination.
func (c *Client) DistanceMatrix(ctx context.Context, origins []models.Location, destination models.Location) ([]DistanceEntry, error) {
	if len(origins) == 0 {
		return nil, nil
	}

	originsParam := ""
	for i, o := range origins {
		if i > 0 {
			originsParam += "|"
		}
		originsParam += fmt.Sprintf("%f,%f", o.Lat, o.Lng)
	}

	q := url.Values{}
	q.Set("origins", originsParam)
	q.Set("destinations", fmt.Sprintf("%f,%f", destination.Lat, destination.Lng))
	q.Set("key", c.apiKey)

	endpoint := fmt.Sprintf("%s/distancematrix?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("distance matrix failed (status %d): %s", resp.StatusCode, string(body))
	}

	var matrixResp matrixResponse
	if err := json.NewDecoder(resp.Body).Decode(&matrixResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	entries := make([]DistanceEntry, 0, len(origins))
	for _, row := range matrixResp.Rows {
		if len(row.Elements) == 0 {
			continue
		}
		el := row.Elements[0]
		entries = append(entries, DistanceEntry{
			DistanceMeters:  el.Distance.Value,
			DurationSeconds: el.Duration.Value,
		})
	}

	if len(entries) != len(origins) {
		return nil, fmt.Errorf("distance matrix returned %d rows for %d origins", len(entries), len(origins))
	}

	return entries, nil
}
