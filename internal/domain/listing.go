package domain

// Product holds the attributes the vision stage recognized on the photo.
type Product struct {
	Name         string   `json:"name"`
	Category     string   `json:"category"`
	Brand        string   `json:"brand,omitempty"`
	Condition    string   `json:"condition"`
	Color        string   `json:"color,omitempty"`
	Size         string   `json:"size,omitempty"`
	Material     string   `json:"material,omitempty"`
	Features     []string `json:"features,omitempty"`
	EstimatedAge string   `json:"estimated_age,omitempty"`
	Defects      []string `json:"defects,omitempty"`
}

// VisionResult is the immutable output of the vision analysis stage.
type VisionResult struct {
	Product             Product  `json:"product"`
	Confidence          float64  `json:"confidence"`
	Keywords            []string `json:"keywords,omitempty"`
	CategorySuggestions []string `json:"category_suggestions,omitempty"`
	ConditionDetails    string   `json:"condition_details,omitempty"`
	ValueMinCents       int      `json:"value_min_cents"`
	ValueMaxCents       int      `json:"value_max_cents"`
	Highlights          []string `json:"highlights,omitempty"`
}

func (v *VisionResult) Clone() *VisionResult {
	if v == nil {
		return nil
	}
	out := *v
	out.Product.Features = append([]string(nil), v.Product.Features...)
	out.Product.Defects = append([]string(nil), v.Product.Defects...)
	out.Keywords = append([]string(nil), v.Keywords...)
	out.CategorySuggestions = append([]string(nil), v.CategorySuggestions...)
	out.Highlights = append([]string(nil), v.Highlights...)
	return &out
}

// PriceData summarizes marketplace price statistics, all amounts in cents.
type PriceData struct {
	AverageCents     int    `json:"average_cents"`
	MedianCents      int    `json:"median_cents"`
	MinCents         int    `json:"min_cents"`
	MaxCents         int    `json:"max_cents"`
	SoldCount        int    `json:"sold_count"`
	ActiveListings   int    `json:"active_listings"`
	Trend            string `json:"trend"`
	CompetitiveCents int    `json:"competitive_cents"`
}

// MarketAnalysis is the output of the market research stage. Unavailable is
// set when research failed and the pipeline degraded to a default price hint;
// consumers should render an appropriate caveat.
type MarketAnalysis struct {
	SearchTerm         string    `json:"search_term"`
	Prices             PriceData `json:"prices"`
	PopularKeywords    []string  `json:"popular_keywords,omitempty"`
	TopConditions      []string  `json:"top_conditions,omitempty"`
	CompetitionLevel   string    `json:"competition_level"`
	SuccessProbability float64   `json:"success_probability"`
	Unavailable        bool      `json:"unavailable,omitempty"`
}

func (m *MarketAnalysis) Clone() *MarketAnalysis {
	if m == nil {
		return nil
	}
	out := *m
	out.PopularKeywords = append([]string(nil), m.PopularKeywords...)
	out.TopConditions = append([]string(nil), m.TopConditions...)
	return &out
}

// MaxTitleLength is the marketplace ceiling for listing titles.
const MaxTitleLength = 80

// ListingContent is the output of the content generation stage.
type ListingContent struct {
	Title                string   `json:"title"`
	Subtitle             string   `json:"subtitle,omitempty"`
	Description          string   `json:"description"`
	BulletPoints         []string `json:"bullet_points,omitempty"`
	SEOKeywords          []string `json:"seo_keywords,omitempty"`
	ConditionDescription string   `json:"condition_description,omitempty"`
	ShippingDescription  string   `json:"shipping_description,omitempty"`
	ReturnPolicy         string   `json:"return_policy,omitempty"`
}

func (c *ListingContent) Clone() *ListingContent {
	if c == nil {
		return nil
	}
	out := *c
	out.BulletPoints = append([]string(nil), c.BulletPoints...)
	out.SEOKeywords = append([]string(nil), c.SEOKeywords...)
	return &out
}

// PublishPayload is the well-formed listing handed to an external marketplace
// publisher. Producing it is where this service's contract ends.
type PublishPayload struct {
	Title              string   `json:"title"`
	Subtitle           string   `json:"subtitle,omitempty"`
	Description        string   `json:"description"`
	Condition          string   `json:"condition"`
	CategorySuggestion string   `json:"category_suggestion,omitempty"`
	StartingPriceCents int      `json:"starting_price_cents"`
	PriceUnavailable   bool     `json:"price_unavailable,omitempty"`
	SEOKeywords        []string `json:"seo_keywords,omitempty"`
	BulletPoints       []string `json:"bullet_points,omitempty"`
}

// BuildPublishPayload assembles the publish payload from a completed result.
// It returns ErrNotReady unless all mandatory stage outputs are present.
func BuildPublishPayload(res ListingResult) (*PublishPayload, error) {
	if res.Vision == nil || res.Content == nil {
		return nil, ErrNotReady
	}
	p := &PublishPayload{
		Title:        res.Content.Title,
		Subtitle:     res.Content.Subtitle,
		Description:  res.Content.Description,
		Condition:    res.Vision.Product.Condition,
		SEOKeywords:  append([]string(nil), res.Content.SEOKeywords...),
		BulletPoints: append([]string(nil), res.Content.BulletPoints...),
	}
	if len(res.Vision.CategorySuggestions) > 0 {
		p.CategorySuggestion = res.Vision.CategorySuggestions[0]
	}
	if res.Market != nil {
		p.StartingPriceCents = res.Market.Prices.CompetitiveCents
		p.PriceUnavailable = res.Market.Unavailable
	}
	return p, nil
}
