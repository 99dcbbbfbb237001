package vision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"listingpilot/internal/domain"
)

// StaticAnalyzer produces a deterministic synthetic analysis keyed off the
// image bytes. It keeps the pipeline fully operational in environments
// without an API key.
type StaticAnalyzer struct{}

// NewStaticAnalyzer returns the credential-free fallback analyzer.
func NewStaticAnalyzer() *StaticAnalyzer {
	return &StaticAnalyzer{}
}

func (s *StaticAnalyzer) Analyze(ctx context.Context, req Request) (*domain.VisionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sum := sha256.Sum256(req.Image)
	tag := hex.EncodeToString(sum[:4])
	return &domain.VisionResult{
		Product: domain.Product{
			Name:      fmt.Sprintf("Unidentified item %s", tag),
			Category:  "Other",
			Condition: "Used",
			Features:  []string{"see photos"},
		},
		Confidence:          0.25,
		Keywords:            []string{"used", "original"},
		CategorySuggestions: []string{"Other"},
		ConditionDetails:    "Condition as pictured; no automated analysis available.",
		ValueMinCents:       1000,
		ValueMaxCents:       3000,
		Highlights:          []string{"Honest photos", "Fast dispatch"},
	}, nil
}

var _ Analyzer = (*StaticAnalyzer)(nil)
