package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"listingpilot/internal/domain"
	"listingpilot/internal/providers/openai"
	"listingpilot/internal/stageerr"
)

// OpenAIAnalyzer asks a vision-capable model to describe the product in a
// strict JSON shape and maps the reply into the domain result.
type OpenAIAnalyzer struct {
	client *openai.Client
}

// NewOpenAIAnalyzer wraps the shared client.
func NewOpenAIAnalyzer(client *openai.Client) *OpenAIAnalyzer {
	return &OpenAIAnalyzer{client: client}
}

type visionPayload struct {
	Product struct {
		Name         string   `json:"name"`
		Category     string   `json:"category"`
		Brand        string   `json:"brand"`
		Condition    string   `json:"condition"`
		Color        string   `json:"color"`
		Size         string   `json:"size"`
		Material     string   `json:"material"`
		Features     []string `json:"features"`
		EstimatedAge string   `json:"estimated_age"`
		Defects      []string `json:"defects"`
	} `json:"product"`
	ConfidenceScore     float64  `json:"confidence_score"`
	SuggestedKeywords   []string `json:"suggested_keywords"`
	CategorySuggestions []string `json:"category_suggestions"`
	ConditionDetails    string   `json:"condition_details"`
	EstimatedValueRange []int    `json:"estimated_value_range"`
	MarketingHighlights []string `json:"marketing_highlights"`
}

func (a *OpenAIAnalyzer) Analyze(ctx context.Context, req Request) (*domain.VisionResult, error) {
	if len(req.Image) == 0 {
		return nil, stageerr.Permanentf("empty image")
	}
	text, err := a.client.ChatJSON(ctx, openai.ChatRequest{
		System:      "You are an expert in online marketplace sales and product appraisal. You always answer with a single valid JSON object.",
		User:        buildAnalysisPrompt(req.Locale),
		Image:       req.Image,
		ImageMIME:   req.MIME,
		Temperature: 0.2,
	})
	if err != nil {
		return nil, err
	}

	var payload visionPayload
	if err := json.Unmarshal([]byte(openai.ExtractJSON(text)), &payload); err != nil {
		return nil, stageerr.Permanent(fmt.Errorf("parse vision reply: %w", err))
	}
	if strings.TrimSpace(payload.Product.Name) == "" {
		return nil, stageerr.Permanentf("vision reply missing product name")
	}

	result := &domain.VisionResult{
		Product: domain.Product{
			Name:         payload.Product.Name,
			Category:     payload.Product.Category,
			Brand:        payload.Product.Brand,
			Condition:    coalesce(payload.Product.Condition, "Used"),
			Color:        payload.Product.Color,
			Size:         payload.Product.Size,
			Material:     payload.Product.Material,
			Features:     payload.Product.Features,
			EstimatedAge: payload.Product.EstimatedAge,
			Defects:      payload.Product.Defects,
		},
		Confidence:          payload.ConfidenceScore,
		Keywords:            payload.SuggestedKeywords,
		CategorySuggestions: payload.CategorySuggestions,
		ConditionDetails:    payload.ConditionDetails,
		Highlights:          payload.MarketingHighlights,
	}
	if len(payload.EstimatedValueRange) == 2 {
		result.ValueMinCents = payload.EstimatedValueRange[0]
		result.ValueMaxCents = payload.EstimatedValueRange[1]
	}
	return result, nil
}

func buildAnalysisPrompt(locale string) string {
	if locale == "" {
		locale = "en"
	}
	sb := &strings.Builder{}
	sb.WriteString("Analyze this product photo for a marketplace auction listing. Respond ONLY with a JSON object matching this schema: ")
	sb.WriteString(`{"product":{"name":string,"category":string,"brand":string|null,"condition":"New|Very good|Good|Used|Defective","color":string,"size":string,"material":string,"features":string[],"estimated_age":string,"defects":string[]},"confidence_score":number,"suggested_keywords":string[],"category_suggestions":string[],"condition_details":string,"estimated_value_range":[min_cents,max_cents],"marketing_highlights":string[]}`)
	fmt.Fprintf(sb, ". Use locale '%s' for all text. Name the product precisely (brand plus model when visible) and be honest about visible wear.", locale)
	return sb.String()
}

func coalesce(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}

var _ Analyzer = (*OpenAIAnalyzer)(nil)
