package content

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"

	"listingpilot/internal/domain"
	"listingpilot/internal/providers/openai"
	"listingpilot/internal/stageerr"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func chatReply(content string) *http.Response {
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	body, _ := json.Marshal(payload)
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(strings.NewReader(string(body))),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newGenerator(t *testing.T, rt roundTripFunc) *OpenAIGenerator {
	t.Helper()
	client, err := openai.NewClient(openai.Options{
		APIKey:     "dummy",
		HTTPClient: &http.Client{Transport: rt},
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return NewOpenAIGenerator(client)
}

func sampleVision() *domain.VisionResult {
	return &domain.VisionResult{
		Product: domain.Product{
			Name:      "Sony WH-1000XM4",
			Brand:     "Sony",
			Condition: "Very good",
			Features:  []string{"noise cancelling"},
		},
		Keywords: []string{"sony", "headphones"},
	}
}

func TestOpenAIGeneratorParsesReply(t *testing.T) {
	reply := `{
		"title": "Sony WH-1000XM4 Wireless Noise Cancelling Headphones Black",
		"subtitle": "Top sound, honest condition",
		"description": "<p>Great headphones.</p>",
		"bullet_points": ["Noise cancelling", "30h battery"],
		"seo_keywords": ["sony", "wh-1000xm4"],
		"condition_description": "Light wear.",
		"shipping_description": "Ships next day.",
		"return_policy": "14 day returns."
	}`
	gen := newGenerator(t, func(r *http.Request) (*http.Response, error) {
		return chatReply(reply), nil
	})

	res, err := gen.Generate(context.Background(), Request{Vision: sampleVision(), Locale: "en"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if res.Title != "Sony WH-1000XM4 Wireless Noise Cancelling Headphones Black" {
		t.Fatalf("Title = %q", res.Title)
	}
	if res.Description == "" || len(res.BulletPoints) != 2 {
		t.Fatalf("content = %+v", res)
	}
}

func TestOpenAIGeneratorClampsOverlongTitle(t *testing.T) {
	long := strings.Repeat("Sony Headphones ", 10)
	reply, _ := json.Marshal(map[string]string{
		"title":       long,
		"description": "<p>ok</p>",
	})
	gen := newGenerator(t, func(r *http.Request) (*http.Response, error) {
		return chatReply(string(reply)), nil
	})

	res, err := gen.Generate(context.Background(), Request{Vision: sampleVision()})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if len(res.Title) > domain.MaxTitleLength {
		t.Fatalf("title length = %d, want <= %d", len(res.Title), domain.MaxTitleLength)
	}
}

func TestOpenAIGeneratorMissingTitleIsPermanent(t *testing.T) {
	gen := newGenerator(t, func(r *http.Request) (*http.Response, error) {
		return chatReply(`{"description":"<p>no title</p>"}`), nil
	})

	_, err := gen.Generate(context.Background(), Request{Vision: sampleVision()})
	if err == nil {
		t.Fatal("expected error for missing title")
	}
	if stageerr.IsTransient(err) {
		t.Fatalf("err = %v, want permanent", err)
	}
}

func TestOpenAIGeneratorRequiresVision(t *testing.T) {
	gen := newGenerator(t, func(r *http.Request) (*http.Response, error) {
		t.Fatal("no request expected without vision input")
		return nil, nil
	})

	if _, err := gen.Generate(context.Background(), Request{}); err == nil {
		t.Fatal("expected error without vision result")
	}
}

func TestClampTitle(t *testing.T) {
	cases := []struct {
		name  string
		in    string
		check func(t *testing.T, got string)
	}{
		{
			name: "short_untouched",
			in:   "Sony WH-1000XM4",
			check: func(t *testing.T, got string) {
				if got != "Sony WH-1000XM4" {
					t.Fatalf("got %q", got)
				}
			},
		},
		{
			name: "cuts_at_word_boundary",
			in:   strings.Repeat("word ", 30),
			check: func(t *testing.T, got string) {
				if len(got) > domain.MaxTitleLength {
					t.Fatalf("length = %d", len(got))
				}
				if strings.HasSuffix(got, " ") || !strings.HasSuffix(got, "word") {
					t.Fatalf("got %q, want clean word boundary", got)
				}
			},
		},
		{
			name: "hard_cut_without_spaces",
			in:   strings.Repeat("x", 120),
			check: func(t *testing.T, got string) {
				if len(got) != domain.MaxTitleLength {
					t.Fatalf("length = %d, want %d", len(got), domain.MaxTitleLength)
				}
			},
		},
		{
			name: "counts_runes_not_bytes",
			in:   strings.Repeat("Ä", 120),
			check: func(t *testing.T, got string) {
				if !utf8.ValidString(got) {
					t.Fatalf("got invalid UTF-8: %q", got)
				}
				if n := utf8.RuneCountInString(got); n != domain.MaxTitleLength {
					t.Fatalf("rune count = %d, want %d", n, domain.MaxTitleLength)
				}
			},
		},
		{
			name: "multibyte_fits_within_limit",
			in:   strings.Repeat("Grüne Lampe ", 5) + "Küchenmaschine",
			check: func(t *testing.T, got string) {
				if got != strings.Repeat("Grüne Lampe ", 5)+"Küchenmaschine" {
					t.Fatalf("74-rune title changed: %q", got)
				}
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.check(t, ClampTitle(tc.in))
		})
	}
}

func TestStaticGeneratorBuildsCompleteListing(t *testing.T) {
	gen := NewStaticGenerator()
	market := &domain.MarketAnalysis{
		Prices:          domain.PriceData{AverageCents: 13000},
		PopularKeywords: []string{"sony", "black", "bluetooth"},
	}

	res, err := gen.Generate(context.Background(), Request{Vision: sampleVision(), Market: market, Locale: "en"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if res.Title == "" || len(res.Title) > domain.MaxTitleLength {
		t.Fatalf("Title = %q", res.Title)
	}
	if !strings.Contains(res.Description, "130.00") {
		t.Fatalf("description lacks market price: %q", res.Description)
	}
	// Keyword merge keeps vision keywords and adds non-duplicate market ones.
	joined := strings.ToLower(strings.Join(res.SEOKeywords, " "))
	for _, want := range []string{"sony", "headphones", "black", "bluetooth"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("SEOKeywords = %v, missing %q", res.SEOKeywords, want)
		}
	}
	count := 0
	for _, kw := range res.SEOKeywords {
		if strings.EqualFold(kw, "sony") {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("duplicate keyword merged: %v", res.SEOKeywords)
	}
}

func TestStaticGeneratorSkipsPriceWhenDegraded(t *testing.T) {
	gen := NewStaticGenerator()
	market := &domain.MarketAnalysis{
		Unavailable: true,
		Prices:      domain.PriceData{AverageCents: 13000},
	}
	res, err := gen.Generate(context.Background(), Request{Vision: sampleVision(), Market: market})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if strings.Contains(res.Description, "130.00") {
		t.Fatal("degraded market price leaked into description")
	}
}
