package handlers

import (
	"bytes"
	"html/template"
	"net/http"

	"listingpilot/internal/domain"
)

// previewTemplate renders a ready listing roughly the way the marketplace
// would show it. The generated description is trusted HTML from our own
// pipeline, everything else is escaped.
var previewTemplate = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html lang="{{.Locale}}">
<head>
<meta charset="utf-8">
<title>{{.Content.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; color: #222; }
h1 { font-size: 1.4rem; }
.subtitle { color: #555; margin-top: -0.5rem; }
.price { font-size: 1.3rem; font-weight: 600; margin: 1rem 0; }
.price .hint { font-size: 0.8rem; font-weight: 400; color: #a00; }
.meta { color: #555; font-size: 0.9rem; }
ul.bullets li { margin: 0.2rem 0; }
.keywords { color: #777; font-size: 0.8rem; margin-top: 2rem; }
</style>
</head>
<body>
<h1>{{.Content.Title}}</h1>
{{if .Content.Subtitle}}<p class="subtitle">{{.Content.Subtitle}}</p>{{end}}
<div class="price">
{{if .PriceCents}}{{printf "%.2f" .Price}} &euro;{{else}}&mdash;{{end}}
{{if .PriceUnavailable}}<span class="hint">market data unavailable, price is an estimate</span>{{end}}
</div>
<p class="meta">Condition: {{.Condition}}{{if .Category}} &middot; {{.Category}}{{end}}</p>
{{if .Content.BulletPoints}}<ul class="bullets">{{range .Content.BulletPoints}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{.Description}}
{{if .Content.ShippingDescription}}<p class="meta">{{.Content.ShippingDescription}}</p>{{end}}
{{if .Content.ReturnPolicy}}<p class="meta">{{.Content.ReturnPolicy}}</p>{{end}}
{{if .Content.SEOKeywords}}<p class="keywords">{{range .Content.SEOKeywords}}#{{.}} {{end}}</p>{{end}}
</body>
</html>
`))

type previewData struct {
	Locale           string
	Content          *domain.ListingContent
	Description      template.HTML
	Condition        string
	Category         string
	PriceCents       int
	PriceUnavailable bool
}

func (d previewData) Price() float64 {
	return float64(d.PriceCents) / 100
}

// JobPreview renders the finished listing as a standalone HTML page.
func (a *App) JobPreview(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJob(w, r)
	if !ok {
		return
	}
	if job.Stage != domain.StageReady || job.Result.Content == nil || job.Result.Vision == nil {
		a.error(w, http.StatusConflict, "not_ready", "job has not produced a listing yet")
		return
	}

	data := previewData{
		Locale:      job.Locale,
		Content:     job.Result.Content,
		Description: template.HTML(job.Result.Content.Description),
		Condition:   job.Result.Vision.Product.Condition,
		Category:    job.Result.Vision.Product.Category,
	}
	if market := job.Result.Market; market != nil {
		data.PriceCents = market.Prices.CompetitiveCents
		data.PriceUnavailable = market.Unavailable
	}

	var buf bytes.Buffer
	if err := previewTemplate.Execute(&buf, data); err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("render preview")
		a.error(w, http.StatusInternalServerError, "internal", "failed to render preview")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
