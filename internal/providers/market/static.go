package market

import (
	"context"
	"strings"

	"listingpilot/internal/domain"
)

// StaticResearcher returns plausible synthetic market data so the pipeline
// stays operational without eBay credentials.
type StaticResearcher struct{}

// NewStaticResearcher returns the credential-free fallback researcher.
func NewStaticResearcher() *StaticResearcher {
	return &StaticResearcher{}
}

func (s *StaticResearcher) Research(ctx context.Context, req Request) (*domain.MarketAnalysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := 25000
	lower := strings.ToLower(req.SearchTerm)
	switch {
	case strings.Contains(lower, "iphone"):
		base = 45000
	case strings.Contains(lower, "laptop"):
		base = 35000
	case strings.Contains(lower, "nike"):
		base = 8000
	}
	first := "item"
	if fields := strings.Fields(req.SearchTerm); len(fields) > 0 {
		first = strings.ToLower(fields[0])
	}
	return &domain.MarketAnalysis{
		SearchTerm: req.SearchTerm,
		Prices: domain.PriceData{
			AverageCents:     base,
			MedianCents:      base * 95 / 100,
			MinCents:         base * 60 / 100,
			MaxCents:         base * 140 / 100,
			SoldCount:        45,
			ActiveListings:   23,
			Trend:            "stable",
			CompetitiveCents: base * 92 / 100,
		},
		PopularKeywords:    []string{first, "used", "good", "condition", "original"},
		TopConditions:      []string{"Very good", "Good", "Used"},
		CompetitionLevel:   "medium",
		SuccessProbability: 0.78,
	}, nil
}

var _ Researcher = (*StaticResearcher)(nil)
