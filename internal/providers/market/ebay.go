package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"listingpilot/internal/domain"
	"listingpilot/internal/stageerr"
)

const findingDefaultTimeout = 30 * time.Second

// EbayOptions configures the Finding API client.
type EbayOptions struct {
	AppID      string
	GlobalID   string
	BaseURL    string
	HTTPClient *http.Client
}

// EbayResearcher queries the eBay Finding API for sold and active listings
// and condenses them into price statistics.
type EbayResearcher struct {
	appID    string
	globalID string
	baseURL  string
	client   *http.Client
}

// NewEbayResearcher validates the options and returns a ready researcher.
func NewEbayResearcher(opts EbayOptions) (*EbayResearcher, error) {
	if opts.AppID == "" {
		return nil, fmt.Errorf("ebay app id is required")
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://svcs.ebay.com/services/search/FindingService/v1"
	}
	globalID := opts.GlobalID
	if globalID == "" {
		globalID = "EBAY-DE"
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: findingDefaultTimeout}
	}
	return &EbayResearcher{
		appID:    opts.AppID,
		globalID: globalID,
		baseURL:  baseURL,
		client:   client,
	}, nil
}

// listing is one normalized Finding API item.
type listing struct {
	Title      string
	PriceCents int
	Condition  string
	EndTime    time.Time
}

func (r *EbayResearcher) Research(ctx context.Context, req Request) (*domain.MarketAnalysis, error) {
	term := strings.TrimSpace(req.SearchTerm)
	if term == "" {
		return nil, stageerr.Permanentf("empty search term")
	}

	sold, err := r.find(ctx, "findCompletedItems", term, true)
	if err != nil {
		return nil, err
	}
	active, err := r.find(ctx, "findItemsAdvanced", term, false)
	if err != nil {
		return nil, err
	}
	if len(sold) == 0 && len(active) == 0 {
		return nil, stageerr.Permanentf("no market data for %q", term)
	}

	analysis := &domain.MarketAnalysis{
		SearchTerm:         term,
		Prices:             priceStatistics(sold, active),
		PopularKeywords:    popularKeywords(append(append([]listing(nil), sold...), active...)),
		TopConditions:      topConditions(sold),
		CompetitionLevel:   competitionLevel(len(active)),
		SuccessProbability: successProbability(len(sold), len(active)),
	}
	return analysis, nil
}

func (r *EbayResearcher) find(ctx context.Context, operation, term string, soldOnly bool) ([]listing, error) {
	params := url.Values{}
	params.Set("OPERATION-NAME", operation)
	params.Set("SERVICE-VERSION", "1.0.0")
	params.Set("SECURITY-APPNAME", r.appID)
	params.Set("RESPONSE-DATA-FORMAT", "JSON")
	params.Set("GLOBAL-ID", r.globalID)
	params.Set("keywords", term)
	params.Set("paginationInput.entriesPerPage", "100")
	if soldOnly {
		params.Set("itemFilter(0).name", "SoldItemsOnly")
		params.Set("itemFilter(0).value", "true")
		params.Set("itemFilter(1).name", "EndTimeFrom")
		params.Set("itemFilter(1).value", time.Now().AddDate(0, 0, -90).Format(time.RFC3339))
		params.Set("sortOrder", "EndTimeSoonest")
	} else {
		params.Set("sortOrder", "PricePlusShippingLowest")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, stageerr.Permanent(err)
	}
	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, stageerr.Transient(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, stageerr.FromStatus(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, stageerr.Transient(err)
	}
	items, err := parseFindingResponse(data)
	if err != nil {
		return nil, stageerr.Permanent(err)
	}
	return items, nil
}

// Finding API responses wrap every field in a single-element array. The
// decode types below mirror that shape.
type findingEnvelope struct {
	FindCompletedItemsResponse []findingResponse `json:"findCompletedItemsResponse"`
	FindItemsAdvancedResponse  []findingResponse `json:"findItemsAdvancedResponse"`
}

type findingResponse struct {
	SearchResult []struct {
		Item []findingItem `json:"item"`
	} `json:"searchResult"`
}

type findingItem struct {
	Title         []string `json:"title"`
	SellingStatus []struct {
		CurrentPrice          []findingPrice `json:"currentPrice"`
		ConvertedCurrentPrice []findingPrice `json:"convertedCurrentPrice"`
	} `json:"sellingStatus"`
	Condition []struct {
		ConditionDisplayName []string `json:"conditionDisplayName"`
	} `json:"condition"`
	ListingInfo []struct {
		EndTime []string `json:"endTime"`
	} `json:"listingInfo"`
}

type findingPrice struct {
	Value    string `json:"__value__"`
	Currency string `json:"@currencyId"`
}

func parseFindingResponse(data []byte) ([]listing, error) {
	var envelope findingEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("parse finding response: %w", err)
	}
	responses := envelope.FindCompletedItemsResponse
	if len(responses) == 0 {
		responses = envelope.FindItemsAdvancedResponse
	}
	if len(responses) == 0 {
		return nil, fmt.Errorf("finding response missing result envelope")
	}

	var out []listing
	for _, sr := range responses[0].SearchResult {
		for _, item := range sr.Item {
			l := listing{Condition: "Used"}
			if len(item.Title) > 0 {
				l.Title = item.Title[0]
			}
			if len(item.SellingStatus) > 0 {
				prices := item.SellingStatus[0].CurrentPrice
				if len(prices) == 0 {
					prices = item.SellingStatus[0].ConvertedCurrentPrice
				}
				if len(prices) > 0 {
					l.PriceCents = priceToCents(prices[0])
				}
			}
			if len(item.Condition) > 0 && len(item.Condition[0].ConditionDisplayName) > 0 {
				l.Condition = item.Condition[0].ConditionDisplayName[0]
			}
			if len(item.ListingInfo) > 0 && len(item.ListingInfo[0].EndTime) > 0 {
				if ts, err := time.Parse(time.RFC3339, item.ListingInfo[0].EndTime[0]); err == nil {
					l.EndTime = ts
				}
			}
			if l.PriceCents > 0 {
				out = append(out, l)
			}
		}
	}
	return out, nil
}

func priceToCents(p findingPrice) int {
	value, err := strconv.ParseFloat(p.Value, 64)
	if err != nil || value <= 0 {
		return 0
	}
	return int(value * 100)
}

// priceStatistics condenses sold listings (falling back to active ones) into
// the price summary. The competitive price sits slightly under the average
// for a quicker sale.
func priceStatistics(sold, active []listing) domain.PriceData {
	source := sold
	if len(source) == 0 {
		source = active
	}
	prices := make([]int, 0, len(source))
	for _, l := range source {
		if l.PriceCents > 0 {
			prices = append(prices, l.PriceCents)
		}
	}
	if len(prices) == 0 {
		return domain.PriceData{
			AverageCents:     2000,
			MedianCents:      2000,
			MinCents:         1000,
			MaxCents:         3000,
			ActiveListings:   len(active),
			Trend:            "unknown",
			CompetitiveCents: 2000,
		}
	}
	sort.Ints(prices)
	var sum int
	for _, p := range prices {
		sum += p
	}
	avg := sum / len(prices)
	return domain.PriceData{
		AverageCents:     avg,
		MedianCents:      prices[len(prices)/2],
		MinCents:         prices[0],
		MaxCents:         prices[len(prices)-1],
		SoldCount:        len(sold),
		ActiveListings:   len(active),
		Trend:            priceTrend(sold),
		CompetitiveCents: avg * 95 / 100,
	}
}

// priceTrend compares the most recent sales against the older ones.
func priceTrend(sold []listing) string {
	if len(sold) <= 10 {
		return "unknown"
	}
	recent := sold[len(sold)-10:]
	older := sold[:len(sold)-10]
	recentAvg := meanCents(recent)
	olderAvg := meanCents(older)
	if recentAvg == 0 || olderAvg == 0 {
		return "unknown"
	}
	switch {
	case float64(recentAvg) > float64(olderAvg)*1.05:
		return "rising"
	case float64(recentAvg) < float64(olderAvg)*0.95:
		return "falling"
	default:
		return "stable"
	}
}

func meanCents(items []listing) int {
	if len(items) == 0 {
		return 0
	}
	var sum int
	for _, l := range items {
		sum += l.PriceCents
	}
	return sum / len(items)
}

var keywordStopwords = map[string]struct{}{
	"und": {}, "der": {}, "die": {}, "das": {}, "mit": {}, "für": {}, "von": {},
	"the": {}, "and": {}, "for": {}, "with": {},
	"gebraucht": {}, "neu": {}, "original": {}, "top": {}, "super": {},
	"used": {}, "new": {}, "good": {},
}

// popularKeywords extracts the most frequent non-stopword title tokens.
func popularKeywords(items []listing) []string {
	counts := map[string]int{}
	for _, item := range items {
		for _, word := range strings.Fields(strings.ToLower(item.Title)) {
			word = strings.Trim(word, ".,!?()[]{}\"'")
			if len(word) <= 2 {
				continue
			}
			if _, stop := keywordStopwords[word]; stop {
				continue
			}
			if _, err := strconv.Atoi(word); err == nil {
				continue
			}
			counts[word]++
		}
	}
	type wc struct {
		word  string
		count int
	}
	ranked := make([]wc, 0, len(counts))
	for w, c := range counts {
		ranked = append(ranked, wc{w, c})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})
	if len(ranked) > 10 {
		ranked = ranked[:10]
	}
	out := make([]string, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.word)
	}
	return out
}

func topConditions(sold []listing) []string {
	counts := map[string]int{}
	for _, l := range sold {
		counts[l.Condition]++
	}
	type cc struct {
		cond  string
		count int
	}
	ranked := make([]cc, 0, len(counts))
	for c, n := range counts {
		ranked = append(ranked, cc{c, n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].cond < ranked[j].cond
	})
	if len(ranked) > 3 {
		ranked = ranked[:3]
	}
	out := make([]string, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.cond)
	}
	return out
}

func competitionLevel(activeCount int) string {
	switch {
	case activeCount > 100:
		return "high"
	case activeCount > 30:
		return "medium"
	default:
		return "low"
	}
}

func successProbability(soldCount, activeCount int) float64 {
	switch {
	case soldCount == 0 && activeCount == 0:
		return 0.3
	case soldCount == 0:
		return 0.2
	case activeCount == 0:
		return 0.9
	}
	ratio := float64(soldCount) / float64(soldCount+activeCount)
	switch {
	case ratio > 0.7:
		return min(0.95, ratio+0.1)
	case ratio > 0.3:
		return ratio
	default:
		return max(0.1, ratio-0.1)
	}
}

var _ Researcher = (*EbayResearcher)(nil)
