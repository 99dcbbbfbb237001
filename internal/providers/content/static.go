package content

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"listingpilot/internal/domain"
)

// StaticGenerator assembles template-based listing copy from the recognized
// attributes. It keeps the pipeline operational without an API key.
type StaticGenerator struct{}

// NewStaticGenerator returns the credential-free fallback generator.
func NewStaticGenerator() *StaticGenerator {
	return &StaticGenerator{}
}

func (s *StaticGenerator) Generate(ctx context.Context, req Request) (*domain.ListingContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Vision == nil {
		return nil, fmt.Errorf("vision result is required")
	}
	product := req.Vision.Product

	titler := cases.Title(languageFor(req.Locale))
	titleParts := []string{}
	if product.Brand != "" && !strings.Contains(strings.ToLower(product.Name), strings.ToLower(product.Brand)) {
		titleParts = append(titleParts, product.Brand)
	}
	titleParts = append(titleParts, product.Name)
	if product.Condition != "" {
		titleParts = append(titleParts, "-", product.Condition)
	}
	title := ClampTitle(titler.String(strings.Join(titleParts, " ")))

	var desc strings.Builder
	fmt.Fprintf(&desc, "<h2>%s</h2>", title)
	fmt.Fprintf(&desc, "<p>For sale: %s in %s condition.</p>", product.Name, strings.ToLower(product.Condition))
	if len(product.Features) > 0 {
		desc.WriteString("<ul>")
		for _, f := range product.Features {
			fmt.Fprintf(&desc, "<li>%s</li>", f)
		}
		desc.WriteString("</ul>")
	}
	if len(product.Defects) > 0 {
		fmt.Fprintf(&desc, "<p>Known flaws: %s.</p>", strings.Join(product.Defects, ", "))
	}
	if req.Market != nil && !req.Market.Unavailable && req.Market.Prices.AverageCents > 0 {
		fmt.Fprintf(&desc, "<p>Comparable items recently sold around %.2f.</p>", float64(req.Market.Prices.AverageCents)/100)
	}
	desc.WriteString("<p>Questions welcome. Ships fast and well packed.</p>")

	keywords := append([]string(nil), req.Vision.Keywords...)
	if req.Market != nil {
		keywords = appendMissing(keywords, req.Market.PopularKeywords...)
	}

	return &domain.ListingContent{
		Title:                title,
		Description:          desc.String(),
		BulletPoints:         bulletPoints(product),
		SEOKeywords:          keywords,
		ConditionDescription: coalesce(req.Vision.ConditionDetails, "Condition as pictured."),
		ShippingDescription:  "Insured shipping within 1-2 business days of payment.",
		ReturnPolicy:         "Returns accepted within 14 days; buyer covers return postage.",
	}, nil
}

func bulletPoints(p domain.Product) []string {
	var points []string
	if p.Brand != "" {
		points = append(points, "Brand: "+p.Brand)
	}
	if p.Condition != "" {
		points = append(points, "Condition: "+p.Condition)
	}
	if p.Color != "" {
		points = append(points, "Color: "+p.Color)
	}
	if p.Material != "" {
		points = append(points, "Material: "+p.Material)
	}
	for _, f := range p.Features {
		points = append(points, f)
	}
	return points
}

func languageFor(locale string) language.Tag {
	tag, err := language.Parse(locale)
	if err != nil {
		return language.English
	}
	return tag
}

func appendMissing(dst []string, extra ...string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, k := range dst {
		seen[strings.ToLower(k)] = struct{}{}
	}
	for _, k := range extra {
		if _, ok := seen[strings.ToLower(k)]; ok {
			continue
		}
		seen[strings.ToLower(k)] = struct{}{}
		dst = append(dst, k)
	}
	return dst
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

var _ Generator = (*StaticGenerator)(nil)
