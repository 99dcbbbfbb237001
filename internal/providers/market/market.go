// Package market researches recent marketplace prices for a recognized
// product. Research is advisory for the pipeline: a failure degrades the job
// instead of aborting it.
package market

import (
	"context"
	"strings"

	"listingpilot/internal/domain"
)

// Request names what to search for.
type Request struct {
	SearchTerm string
	Locale     string
}

// Researcher is implemented by every market data backend.
type Researcher interface {
	Research(ctx context.Context, req Request) (*domain.MarketAnalysis, error)
}

// NormalizeTerm canonicalizes a search term for cache keying: lower case,
// collapsed whitespace.
func NormalizeTerm(term string) string {
	return strings.Join(strings.Fields(strings.ToLower(term)), " ")
}
