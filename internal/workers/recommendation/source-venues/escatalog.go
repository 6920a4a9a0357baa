// internal/workers/recommendation/source-venues/escatalog.go
package sourcevenues

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"venueflow/internal/models"
)

// Catalog is the internal place catalog the sourcing stage queries alongside
// the external provider.
type Catalog interface {
	SearchNearby(ctx context.Context, center models.Location, radiusMeters int, cuisines []string) ([]models.VenueCandidate, error)
}

// ESCatalog serves the internal catalog channel from the places index.
type ESCatalog struct {
	client *elasticsearch.Client
	index  string
}

func NewESCatalog(client *elasticsearch.Client, index string) *ESCatalog {
	return &ESCatalog{client: client, index: index}
}

type placeDocument struct {
	ExternalID string   `json:"external_id"`
	Name       string   `json:"name"`
	Category   string   `json:"category"`
	Tags       []string `json:"tags"`
	Rating     *float64 `json:"rating"`
	PriceLevel *int     `json:"price_level"`
	Address    string   `json:"address"`
	Location   struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"location"`
}

func buildNearbyQuery(center models.Location, radiusMeters int, cuisines []string) map[string]interface{} {
	filterClauses := []interface{}{
		map[string]interface{}{
			"geo_distance": map[string]interface{}{
				"distance": fmt.Sprintf("%dm", radiusMeters),
				"location": map[string]interface{}{
					"lat": center.Lat,
					"lon": center.Lng,
				},
			},
		},
	}

	boolQuery := map[string]interface{}{"filter": filterClauses}

	// Cuisine hints boost matching venues without excluding the rest.
	if len(cuisines) > 0 {
		shouldClauses := make([]interface{}, 0, len(cuisines))
		for _, c := range cuisines {
			shouldClauses = append(shouldClauses, map[string]interface{}{
				"multi_match": map[string]interface{}{
					"query":  c,
					"fields": []string{"category^2", "tags", "name"},
				},
			})
		}
		boolQuery["should"] = shouldClauses
	}

	return map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"sort": []interface{}{
			map[string]interface{}{
				"_geo_distance": map[string]interface{}{
					"location": map[string]interface{}{
						"lat": center.Lat,
						"lon": center.Lng,
					},
					"order": "asc",
					"unit":  "m",
				},
			},
		},
	}
}

func (c *ESCatalog) SearchNearby(ctx context.Context, center models.Location, radiusMeters int, cuisines []string) ([]models.VenueCandidate, error) {
	body, _ := json.Marshal(buildNearbyQuery(center, radiusMeters, cuisines))
	size := 100

	req := esapi.SearchRequest{
		Index: []string{c.index},
		Body:  strings.NewReader(string(body)),
		Size:  &size,
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("catalog search failed: %s", res.String())
	}

	var r struct {
		Hits struct {
			Hits []struct {
				ID     string        `json:"_id"`
				Source placeDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, err
	}

	candidates := make([]models.VenueCandidate, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		doc := hit.Source
		candidates = append(candidates, models.VenueCandidate{
			ID:         hit.ID,
			ExternalID: doc.ExternalID,
			Name:       doc.Name,
			Lat:        doc.Location.Lat,
			Lng:        doc.Location.Lon,
			Category:   doc.Category,
			Tags:       doc.Tags,
			Rating:     doc.Rating,
			PriceLevel: doc.PriceLevel,
			Address:    doc.Address,
			Source:     models.SourceDatabase,
		})
	}

	return candidates, nil
}
