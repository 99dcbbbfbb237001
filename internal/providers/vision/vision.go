// Package vision recognizes product attributes on an uploaded photo.
package vision

import (
	"context"

	"listingpilot/internal/domain"
)

// Request carries the image handed to the analyzer.
type Request struct {
	Image  []byte
	MIME   string
	Locale string
}

// Analyzer is implemented by every vision backend.
type Analyzer interface {
	Analyze(ctx context.Context, req Request) (*domain.VisionResult, error)
}
