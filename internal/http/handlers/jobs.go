package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"listingpilot/internal/domain"
	"listingpilot/internal/middleware"
	"listingpilot/internal/pipeline"
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// detectImage sniffs the upload and returns its MIME type and file extension.
func detectImage(data []byte) (string, string, error) {
	if len(data) == 0 {
		return "", "", fmt.Errorf("%w: uploaded file is empty", domain.ErrInvalidUpload)
	}
	mime := http.DetectContentType(data)
	ext, ok := imageExtensions[mime]
	if !ok {
		return "", "", fmt.Errorf("%w: only JPEG, PNG and WebP images are accepted", domain.ErrInvalidUpload)
	}
	return mime, ext, nil
}

type jobResponse struct {
	ID        string               `json:"id"`
	Stage     domain.JobStage      `json:"stage"`
	Progress  int                  `json:"progress"`
	Message   string               `json:"message,omitempty"`
	Error     *domain.JobError     `json:"error,omitempty"`
	Result    domain.ListingResult `json:"result"`
	Filename  string               `json:"filename,omitempty"`
	Locale    string               `json:"locale,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

type submitResponse struct {
	jobResponse
	StatusURL  string `json:"status_url"`
	PreviewURL string `json:"preview_url"`
}

func toJobResponse(job *domain.Job) jobResponse {
	return jobResponse{
		ID:        job.ID,
		Stage:     job.Stage,
		Progress:  job.Progress,
		Message:   job.Message,
		Error:     job.Error,
		Result:    job.Result,
		Filename:  job.SourceFilename,
		Locale:    job.Locale,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
}

// JobSubmit accepts a product photo and queues the listing pipeline for it.
// Invalid uploads are rejected before any job exists.
func (a *App) JobSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	if err := r.ParseMultipartForm(a.MaxUploadBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			a.error(w, http.StatusRequestEntityTooLarge, "upload_too_large", "image exceeds the upload limit")
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "image field is required")
		return
	}
	defer func() {
		_ = file.Close()
	}()

	data, err := io.ReadAll(file)
	if err != nil {
		a.error(w, http.StatusRequestEntityTooLarge, "upload_too_large", "image exceeds the upload limit")
		return
	}
	mime, ext, err := detectImage(data)
	if err != nil {
		a.error(w, http.StatusBadRequest, "invalid_image", err.Error())
		return
	}

	jobID := uuid.NewString()
	key, err := a.Uploads.Write(r.Context(), "uploads/"+jobID+ext, data)
	if err != nil {
		a.Logger.Error().Err(err).Msg("store upload")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store upload")
		return
	}

	job := &domain.Job{
		ID:             jobID,
		ImageKey:       key,
		SourceFilename: filepath.Base(header.Filename),
		Locale:         middleware.LocaleFromContext(r.Context()),
	}
	if err := a.Store.Create(r.Context(), job); err != nil {
		a.Logger.Error().Err(err).Msg("create job")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create job")
		return
	}

	if a.Dispatcher != nil {
		if err := a.Dispatcher.Enqueue(jobID); errors.Is(err, pipeline.ErrQueueFull) {
			cancelled := domain.StageCancelled
			if _, cancelErr := a.Store.Update(r.Context(), jobID, domain.JobUpdate{Stage: &cancelled}); cancelErr != nil {
				a.Logger.Error().Err(cancelErr).Str("job_id", jobID).Msg("cancel overflow job")
			}
			a.error(w, http.StatusServiceUnavailable, "queue_full", "too many jobs in flight, retry shortly")
			return
		}
	}

	a.Logger.Info().Str("job_id", jobID).Str("mime", mime).Int("bytes", len(data)).Msg("job queued")
	a.json(w, http.StatusAccepted, submitResponse{
		jobResponse: toJobResponse(job),
		StatusURL:   "/api/jobs/" + jobID,
		PreviewURL:  "/api/jobs/" + jobID + "/preview",
	})
}

// JobStatus is the polling endpoint; clients call it until the job reaches a
// terminal stage.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJob(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}

// JobCancel moves a job into the cancelled stage. The pipeline notices at its
// next stage boundary and stops.
func (a *App) JobCancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	cancelled := domain.StageCancelled
	job, err := a.Store.Update(r.Context(), jobID, domain.JobUpdate{Stage: &cancelled})
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	case errors.Is(err, domain.ErrInvalidTransition):
		a.error(w, http.StatusConflict, "already_finished", "job already reached a terminal stage")
		return
	case err != nil:
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("cancel job")
		a.error(w, http.StatusInternalServerError, "internal", "failed to cancel job")
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}

// JobListing returns the publish payload for a completed job.
func (a *App) JobListing(w http.ResponseWriter, r *http.Request) {
	job, ok := a.loadJob(w, r)
	if !ok {
		return
	}
	if job.Stage != domain.StageReady {
		a.error(w, http.StatusConflict, "not_ready", "job has not produced a listing yet")
		return
	}
	payload, err := domain.BuildPublishPayload(job.Result)
	if err != nil {
		a.error(w, http.StatusConflict, "not_ready", "job has not produced a listing yet")
		return
	}
	a.json(w, http.StatusOK, payload)
}

func (a *App) loadJob(w http.ResponseWriter, r *http.Request) (*domain.Job, bool) {
	jobID := chi.URLParam(r, "id")
	if jobID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "job id required")
		return nil, false
	}
	job, err := a.Store.Get(r.Context(), jobID)
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return nil, false
	}
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("load job")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return nil, false
	}
	return job, true
}
