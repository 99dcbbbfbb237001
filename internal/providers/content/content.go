// Package content turns the vision and market stage outputs into the listing
// copy that is the pipeline's primary deliverable.
package content

import (
	"context"
	"strings"
	"unicode/utf8"

	"listingpilot/internal/domain"
)

// Request carries both upstream stage outputs. Market may describe a degraded
// analysis; generators must still produce a complete listing.
type Request struct {
	Vision *domain.VisionResult
	Market *domain.MarketAnalysis
	Locale string
}

// Generator is implemented by every copywriting backend.
type Generator interface {
	Generate(ctx context.Context, req Request) (*domain.ListingContent, error)
}

// ClampTitle enforces the marketplace title ceiling, cutting at a word
// boundary when one is close enough. The limit counts runes, not bytes, so
// umlauts and other multi-byte characters are never split.
func ClampTitle(title string) string {
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) <= domain.MaxTitleLength {
		return title
	}
	cut := string([]rune(title)[:domain.MaxTitleLength])
	if idx := strings.LastIndex(cut, " "); idx > 0 && utf8.RuneCountInString(cut[:idx]) > domain.MaxTitleLength/2 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}
