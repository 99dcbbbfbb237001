package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"listingpilot/internal/domain"
	"listingpilot/internal/jobstore"
	"listingpilot/internal/storage"
)

// pngBytes is a minimal PNG header so http.DetectContentType sees image/png.
var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 13, 'I', 'H', 'D', 'R'}

func newTestApp(t *testing.T) (*App, *jobstore.Memory) {
	t.Helper()
	uploads, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	store := jobstore.NewMemory()
	return &App{
		Store:          store,
		Uploads:        uploads,
		MaxUploadBytes: 1 << 20,
		Logger:         zerolog.Nop(),
	}, store
}

func newRouter(app *App) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/jobs", app.JobSubmit)
	r.Get("/api/jobs/{id}", app.JobStatus)
	r.Get("/api/jobs/{id}/preview", app.JobPreview)
	r.Get("/api/jobs/{id}/listing", app.JobListing)
	r.Post("/api/jobs/{id}/cancel", app.JobCancel)
	return r
}

func multipartImage(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("CreateFormFile returned error: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestJobSubmitAcceptsImage(t *testing.T) {
	app, store := newTestApp(t)
	router := newRouter(app)

	body, contentType := multipartImage(t, "image", "lamp.png", pngBytes)
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var resp submitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Stage != domain.StagePending {
		t.Fatalf("Stage = %q, want pending", resp.Stage)
	}
	if resp.Filename != "lamp.png" {
		t.Fatalf("Filename = %q", resp.Filename)
	}
	if resp.StatusURL != "/api/jobs/"+resp.ID {
		t.Fatalf("StatusURL = %q", resp.StatusURL)
	}

	job, err := store.Get(context.Background(), resp.ID)
	if err != nil {
		t.Fatalf("job not persisted: %v", err)
	}
	data, err := app.Uploads.Read(context.Background(), job.ImageKey)
	if err != nil {
		t.Fatalf("upload not persisted: %v", err)
	}
	if !bytes.Equal(data, pngBytes) {
		t.Fatal("stored image differs from upload")
	}
}

func TestJobSubmitRejectsNonImageWithoutCreatingJob(t *testing.T) {
	app, store := newTestApp(t)
	router := newRouter(app)

	body, contentType := multipartImage(t, "image", "notes.txt", []byte("plain text, not an image"))
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if store.Len() != 0 {
		t.Fatalf("store has %d jobs, want 0 after rejected upload", store.Len())
	}
}

func TestJobSubmitRejectsMissingField(t *testing.T) {
	app, store := newTestApp(t)
	router := newRouter(app)

	body, contentType := multipartImage(t, "attachment", "lamp.png", pngBytes)
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if store.Len() != 0 {
		t.Fatal("job created despite missing image field")
	}
}

func TestJobStatusUnknownJob(t *testing.T) {
	app, _ := newTestApp(t)
	router := newRouter(app)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func readyJob(t *testing.T, store *jobstore.Memory) string {
	t.Helper()
	job := &domain.Job{ID: uuid.NewString(), ImageKey: "uploads/x.png", Locale: "en"}
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	vision := &domain.VisionResult{
		Product:             domain.Product{Name: "Acme Desk Lamp", Condition: "Good", Category: "Lighting"},
		CategorySuggestions: []string{"Home > Lighting"},
	}
	market := &domain.MarketAnalysis{
		Prices: domain.PriceData{CompetitiveCents: 2375},
	}
	content := &domain.ListingContent{
		Title:       "Acme Desk Lamp - Good Condition",
		Description: "<p>A sturdy desk lamp.</p>",
		SEOKeywords: []string{"lamp"},
	}
	steps := []domain.JobUpdate{
		{Stage: stagePtr(domain.StageAnalyzing), Progress: intPtr(10)},
		{Stage: stagePtr(domain.StageResearching), Progress: intPtr(40), Vision: vision},
		{Stage: stagePtr(domain.StageGenerating), Progress: intPtr(70), Market: market},
		{Stage: stagePtr(domain.StageReady), Progress: intPtr(100), Content: content},
	}
	for _, step := range steps {
		if _, err := store.Update(context.Background(), job.ID, step); err != nil {
			t.Fatalf("Update returned error: %v", err)
		}
	}
	return job.ID
}

func stagePtr(s domain.JobStage) *domain.JobStage { return &s }
func intPtr(v int) *int                           { return &v }

func TestJobListingReturnsPublishPayload(t *testing.T) {
	app, store := newTestApp(t)
	router := newRouter(app)
	jobID := readyJob(t, store)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID+"/listing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var payload domain.PublishPayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Title != "Acme Desk Lamp - Good Condition" {
		t.Fatalf("Title = %q", payload.Title)
	}
	if payload.StartingPriceCents != 2375 {
		t.Fatalf("StartingPriceCents = %d, want 2375", payload.StartingPriceCents)
	}
	if payload.CategorySuggestion != "Home > Lighting" {
		t.Fatalf("CategorySuggestion = %q", payload.CategorySuggestion)
	}
}

func TestJobListingConflictsBeforeReady(t *testing.T) {
	app, store := newTestApp(t)
	router := newRouter(app)

	job := &domain.Job{ID: uuid.NewString(), ImageKey: "uploads/x.png"}
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	for _, path := range []string{"/listing", "/preview"} {
		req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID+path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusConflict {
			t.Fatalf("GET %s status = %d, want 409", path, rec.Code)
		}
	}
}

func TestJobPreviewRendersHTML(t *testing.T) {
	app, store := newTestApp(t)
	router := newRouter(app)
	jobID := readyJob(t, store)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID+"/preview", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("Content-Type = %q", ct)
	}
	html := rec.Body.String()
	if !strings.Contains(html, "Acme Desk Lamp - Good Condition") {
		t.Fatal("preview is missing the listing title")
	}
	if !strings.Contains(html, "<p>A sturdy desk lamp.</p>") {
		t.Fatal("preview is missing the generated description")
	}
}

func TestJobCancelPendingJob(t *testing.T) {
	app, store := newTestApp(t)
	router := newRouter(app)

	job := &domain.Job{ID: uuid.NewString(), ImageKey: "uploads/x.png"}
	if err := store.Create(context.Background(), job); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/"+job.ID+"/cancel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	got, _ := store.Get(context.Background(), job.ID)
	if got.Stage != domain.StageCancelled {
		t.Fatalf("Stage = %q, want cancelled", got.Stage)
	}
}

func TestJobCancelConflictsWhenTerminal(t *testing.T) {
	app, store := newTestApp(t)
	router := newRouter(app)
	jobID := readyJob(t, store)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/"+jobID+"/cancel", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}
