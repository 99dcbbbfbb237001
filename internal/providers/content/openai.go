package content

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"listingpilot/internal/domain"
	"listingpilot/internal/providers/openai"
	"listingpilot/internal/stageerr"
)

// OpenAIGenerator prompts a chat model for the full listing copy in a strict
// JSON shape.
type OpenAIGenerator struct {
	client *openai.Client
}

// NewOpenAIGenerator wraps the shared client.
func NewOpenAIGenerator(client *openai.Client) *OpenAIGenerator {
	return &OpenAIGenerator{client: client}
}

type contentPayload struct {
	Title                string   `json:"title"`
	Subtitle             string   `json:"subtitle"`
	Description          string   `json:"description"`
	BulletPoints         []string `json:"bullet_points"`
	SEOKeywords          []string `json:"seo_keywords"`
	ConditionDescription string   `json:"condition_description"`
	ShippingDescription  string   `json:"shipping_description"`
	ReturnPolicy         string   `json:"return_policy"`
}

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (*domain.ListingContent, error) {
	if req.Vision == nil {
		return nil, stageerr.Permanentf("vision result is required")
	}
	text, err := g.client.ChatJSON(ctx, openai.ChatRequest{
		System:      "You are an expert marketplace seller who writes high-converting, SEO-optimized auction listings. You always answer with a single valid JSON object.",
		User:        buildContentPrompt(req),
		Temperature: 0.7,
	})
	if err != nil {
		return nil, err
	}

	var payload contentPayload
	if err := json.Unmarshal([]byte(openai.ExtractJSON(text)), &payload); err != nil {
		return nil, stageerr.Permanent(fmt.Errorf("parse content reply: %w", err))
	}
	if strings.TrimSpace(payload.Title) == "" || strings.TrimSpace(payload.Description) == "" {
		return nil, stageerr.Permanentf("content reply missing title or description")
	}

	return &domain.ListingContent{
		Title:                ClampTitle(payload.Title),
		Subtitle:             payload.Subtitle,
		Description:          payload.Description,
		BulletPoints:         payload.BulletPoints,
		SEOKeywords:          payload.SEOKeywords,
		ConditionDescription: payload.ConditionDescription,
		ShippingDescription:  payload.ShippingDescription,
		ReturnPolicy:         payload.ReturnPolicy,
	}, nil
}

func buildContentPrompt(req Request) string {
	product := req.Vision.Product
	locale := req.Locale
	if locale == "" {
		locale = "en"
	}

	sb := &strings.Builder{}
	sb.WriteString("Write a marketplace auction listing. Respond ONLY with JSON: ")
	sb.WriteString(`{"title":string,"subtitle":string,"description":string,"bullet_points":string[],"seo_keywords":string[],"condition_description":string,"shipping_description":string,"return_policy":string}`)
	fmt.Fprintf(sb, ". The title must be at most %d characters with the strongest keywords first. Use locale '%s'.\n", domain.MaxTitleLength, locale)

	fmt.Fprintf(sb, "Product: name=%q category=%q brand=%q condition=%q color=%q features=%q defects=%q estimated_age=%q.\n",
		product.Name, product.Category, product.Brand, product.Condition, product.Color,
		strings.Join(product.Features, ", "), strings.Join(product.Defects, ", "), product.EstimatedAge)
	if len(req.Vision.Highlights) > 0 {
		fmt.Fprintf(sb, "Marketing highlights: %s.\n", strings.Join(req.Vision.Highlights, "; "))
	}

	if req.Market != nil && !req.Market.Unavailable {
		fmt.Fprintf(sb, "Market data: average price %.2f, recommended price %.2f, popular keywords %q, competition %s, success probability %.0f%%.\n",
			float64(req.Market.Prices.AverageCents)/100,
			float64(req.Market.Prices.CompetitiveCents)/100,
			strings.Join(req.Market.PopularKeywords, ", "),
			req.Market.CompetitionLevel,
			req.Market.SuccessProbability*100)
	} else {
		sb.WriteString("Market data is unavailable; do not invent specific price statistics.\n")
	}

	sb.WriteString("Be honest about defects, structure the description with short sections, and write like an experienced trustworthy seller.")
	return sb.String()
}

var _ Generator = (*OpenAIGenerator)(nil)
