// internal/common/ai/gemini.go

// Package ai wraps the Gemini reasoning service used by the re-ranking stage.
// The call runs under a strict timeout and is never retried: a single missed
// window falls back to the deterministic ranking.
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"venueflow/internal/common/config"
	apperrors "venueflow/internal/common/errors"
	"venueflow/internal/common/logger"
	"venueflow/internal/models"

	"google.golang.org/genai"
)

// AnalysisRequest carries everything the reasoning service sees: the top-N
// scored candidates, the synthesized group profile and event context.
type AnalysisRequest struct {
	EventTitle           string
	ScheduledAt          time.Time
	Headcount            int
	Preferences          models.AggregatedPreferences
	Candidates           []models.VenueRecommendation
	ParticipantLocations []models.Location
}

// VenueInsight is the per-venue adjustment returned by the service.
type VenueInsight struct {
	VenueID           string   `json:"venueId"`
	AdjustedScore     float64  `json:"adjustedScore"`
	Reasoning         string   `json:"reasoning"`
	Pros              []string `json:"pros"`
	Cons              []string `json:"cons"`
	SuggestedCategory string   `json:"suggestedCategory"`
	SuggestedTags     []string `json:"suggestedTags"`
}

// AnalysisResult is the parsed service response.
type AnalysisResult struct {
	PerVenue               []VenueInsight `json:"venues"`
	OverallInsight         string         `json:"overallInsight"`
	SuggestedEventCategory string         `json:"suggestedEventCategory"`
	SuggestedEventTags     []string       `json:"suggestedEventTags"`
}

// Analyzer is the collaborator contract consumed by the ai-rerank worker.
type Analyzer interface {
	Analyze(ctx context.Context, req *AnalysisRequest) (*AnalysisResult, error)
}

// GeminiClient implements Analyzer against the Gemini API.
type GeminiClient struct {
	client      *genai.Client
	model       string
	temperature float64
	timeout     time.Duration
	logger      logger.Logger
}

func NewGeminiClient(cfg config.GeminiConfig, log logger.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	return &GeminiClient{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     time.Duration(cfg.TimeoutMS) * time.Millisecond,
		logger:      log.WithFields(map[string]interface{}{"component": "gemini"}),
	}, nil
}

// Analyze sends one analysis request and parses the structured JSON reply.
func (c *GeminiClient) Analyze(ctx context.Context, req *AnalysisRequest) (*AnalysisResult, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	prompt, err := buildPrompt(req)
	if err != nil {
		return nil, apperrors.NewGeminiFailedError(err.Error())
	}

	temp := float32(c.temperature)
	genCfg := &genai.GenerateContentConfig{
		Temperature:       &temp,
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(
		timeoutCtx,
		c.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		genCfg,
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || timeoutCtx.Err() == context.DeadlineExceeded {
			return nil, apperrors.NewGeminiTimeoutError(err.Error())
		}
		return nil, apperrors.NewGeminiFailedError(err.Error())
	}

	text := extractText(resp)
	if text == "" {
		return nil, apperrors.NewGeminiFailedError("empty response from model")
	}

	result, err := parseResult(text)
	if err != nil {
		return nil, apperrors.NewGeminiFailedError(err.Error())
	}

	c.logger.Info("analysis completed", map[string]interface{}{
		"venueCount": len(result.PerVenue),
		"durationMs": time.Since(start).Milliseconds(),
	})

	return result, nil
}

const systemInstruction = "You are a venue recommendation assistant for group events. " +
	"Respond with a single JSON object only, no prose, matching the schema given in the prompt."

func buildPrompt(req *AnalysisRequest) (string, error) {
	payload := map[string]interface{}{
		"event": map[string]interface{}{
			"title":       req.EventTitle,
			"scheduledAt": req.ScheduledAt.Format(time.RFC3339),
			"headcount":   req.Headcount,
		},
		"groupPreferences":     req.Preferences,
		"candidates":           req.Candidates,
		"participantLocations": req.ParticipantLocations,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal analysis payload: %w", err)
	}

	var b strings.Builder
	b.WriteString("Re-rank the candidate venues for this group event. Consider the group preferences, ")
	b.WriteString("dietary restrictions and fairness of travel distance for all participants.\n\n")
	b.WriteString("Input:\n")
	b.Write(data)
	b.WriteString("\n\nReply with JSON of the shape:\n")
	b.WriteString(`{"venues":[{"venueId":"","adjustedScore":0.0,"reasoning":"","pros":[],"cons":[],` +
		`"suggestedCategory":"","suggestedTags":[]}],"overallInsight":"",` +
		`"suggestedEventCategory":"","suggestedEventTags":[]}`)
	b.WriteString("\nOnly include venueId values that appear in the input candidates.")

	return b.String(), nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}

	var out strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				out.WriteString(part.Text)
			}
		}
		if out.Len() > 0 {
			break
		}
	}
	return out.String()
}

// parseResult tolerates markdown code fences around the JSON body.
func parseResult(text string) (*AnalysisResult, error) {
	cleaned := strings.TrimSpace(text)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var result AnalysisResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return nil, fmt.Errorf("unmarshal analysis result: %w", err)
	}

	if len(result.PerVenue) == 0 {
		return nil, fmt.Errorf("analysis result contains no venues")
	}

	return &result, nil
}
