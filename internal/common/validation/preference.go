// internal/common/validation/preference.go

// Package validation checks inbound preference payloads at the aggregation
// boundary. Invariant violations are rejected with a validation error, never
// silently coerced.
package validation

import (
	"github.com/xeipuuv/gojsonschema"

	apperrors "venueflow/internal/common/errors"
	"venueflow/internal/models"
)

// preferenceSchema constrains a raw preference record. Budget uses price
// tiers 1..4; radius must not be negative; vote-free fields may be absent.
var preferenceSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"participantId": map[string]interface{}{
			"type":      "string",
			"minLength": 1,
		},
		"cuisines": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
		},
		"budget": map[string]interface{}{
			"type":    "integer",
			"minimum": 1,
			"maximum": 4,
		},
		"radiusMeters": map[string]interface{}{
			"type":    "integer",
			"minimum": 0,
		},
		"dietary": map[string]interface{}{
			"type":  "array",
			"items": map[string]interface{}{"type": "string"},
		},
		"weightHints": map[string]interface{}{
			"type": "object",
			"additionalProperties": map[string]interface{}{
				"type":    "integer",
				"minimum": 0,
			},
		},
		"lat": map[string]interface{}{"type": "number", "minimum": -90, "maximum": 90},
		"lng": map[string]interface{}{"type": "number", "minimum": -180, "maximum": 180},
	},
	"required": []interface{}{"participantId"},
}

// ValidatePreferencePayload validates one raw preference document against the
// schema before it is decoded into a PreferenceRecord.
func ValidatePreferencePayload(doc map[string]interface{}) error {
	schemaLoader := gojsonschema.NewGoLoader(preferenceSchema)
	documentLoader := gojsonschema.NewGoLoader(doc)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return apperrors.NewInvalidPayloadError("", err.Error())
	}

	if !result.Valid() {
		details := ""
		for _, desc := range result.Errors() {
			if details != "" {
				details += "; "
			}
			details += desc.String()
		}
		participantID := ""
		if v, ok := doc["participantId"].(string); ok {
			participantID = v
		}
		return apperrors.NewInvalidPayloadError(participantID, details)
	}

	return nil
}

// ValidatePreferenceRecord enforces the invariants a decoded record must hold.
func ValidatePreferenceRecord(rec models.PreferenceRecord) error {
	if rec.ParticipantID == "" {
		return apperrors.NewInvalidPayloadError("", "participantId is required")
	}
	if rec.RadiusMeters != nil && *rec.RadiusMeters < 0 {
		return apperrors.NewNegativeRadiusError(rec.ParticipantID, *rec.RadiusMeters)
	}
	if rec.Budget != nil && (*rec.Budget < 1 || *rec.Budget > 4) {
		return apperrors.NewInvalidPayloadError(rec.ParticipantID, "budget tier must be within 1..4")
	}
	for category, weight := range rec.WeightHints {
		if weight < 0 {
			return apperrors.NewInvalidPayloadError(rec.ParticipantID, "weight hints must not be negative")
		}
		recognized := false
		for _, known := range models.RecognizedCategories {
			if category == known {
				recognized = true
				break
			}
		}
		if !recognized {
			return apperrors.NewInvalidPayloadError(rec.ParticipantID, "unrecognized weight category: "+category)
		}
	}
	return nil
}
