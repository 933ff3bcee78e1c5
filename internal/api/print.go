package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dunamismax/printflow/internal/codec"
	"github.com/dunamismax/printflow/internal/domain"
	"github.com/dunamismax/printflow/internal/id"
	"github.com/dunamismax/printflow/internal/pipeline"
	"github.com/dunamismax/printflow/internal/queue"
)

type printResponse struct {
	Success        bool       `json:"success"`
	ProcessedImage string     `json:"processed_image"`
	Dimensions     dimensions `json:"dimensions"`
	FileSize       int        `json:"file_size"`
}

type jobResponse struct {
	JobID       string      `json:"job_id"`
	Status      string      `json:"status"`
	OutputKey   string      `json:"output_key,omitempty"`
	DownloadURL string      `json:"download_url,omitempty"`
	Dimensions  *dimensions `json:"dimensions,omitempty"`
	FileSize    int64       `json:"file_size,omitempty"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (s *Server) withDefaultDPI(opts domain.PrintOptions) domain.PrintOptions {
	if opts.PrintDPI == 0 {
		opts.PrintDPI = s.opts.DefaultDPI
	}
	return opts
}

func (s *Server) handlePrint(w http.ResponseWriter, r *http.Request) {
	if s.processor == nil {
		writeUnavailable(w, "print pipeline")
		return
	}

	var req domain.PrintRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	spec, err := pipeline.NewSpec(s.withDefaultDPI(req.PrintOptions), req.Crop)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.processor.Process(r.Context(), req.Image, spec)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, printResponse{
		Success:        true,
		ProcessedImage: result.DataURI(),
		Dimensions:     dimensions{Width: result.Width, Height: result.Height, DPI: result.DPI},
		FileSize:       result.Bytes,
	})
}

func (s *Server) handleCreatePrintJob(w http.ResponseWriter, r *http.Request) {
	if s.jobStore == nil || s.queueClient == nil || s.storage == nil {
		writeUnavailable(w, "print jobs")
		return
	}

	var req domain.CreatePrintJobRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	opts := s.withDefaultDPI(req.PrintOptions)
	if _, err := pipeline.NewSpec(opts, req.Crop); err != nil {
		s.writeError(w, r, err)
		return
	}

	mime, data, err := codec.ParseDataURI(req.Image)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if mime == "" {
		mime = "application/octet-stream"
	}

	now := time.Now().UTC()
	job := domain.PrintJob{
		ID:         id.New(),
		UserID:     s.userID(r),
		Status:     domain.JobStatusCreated,
		WebhookURL: strings.TrimSpace(req.WebhookURL),
		Crop:       req.Crop,
		Options:    opts,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	job.SourceKey = pipeline.SourceKey(job.ID)

	if err := s.storage.WriteObject(r.Context(), job.SourceKey, data, mime); err != nil {
		s.logger.Printf("upload source failed job_id=%s err=%v", job.ID, err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to store source image", Code: "storage_error"})
		return
	}

	if err := s.jobStore.Create(r.Context(), job); err != nil {
		s.logger.Printf("create job failed job_id=%s err=%v", job.ID, err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to create job", Code: "store_error"})
		return
	}

	taskInfo, err := s.queueClient.EnqueueProcessPrint(r.Context(), queue.ProcessPrintPayload{
		JobID:       job.ID,
		UserID:      job.UserID,
		WebhookURL:  job.WebhookURL,
		SourceKey:   job.SourceKey,
		Crop:        job.Crop,
		Options:     job.Options,
		RequestedAt: now,
	})
	if err != nil {
		s.logger.Printf("enqueue failed job_id=%s err=%v", job.ID, err)
		if _, err := s.jobStore.Complete(r.Context(), job.ID, domain.JobResult{
			Status: domain.JobStatusFailed,
			Error:  "failed to enqueue job",
		}); err != nil {
			s.logger.Printf("mark job failed job_id=%s err=%v", job.ID, err)
		}
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to enqueue job", Code: "queue_error"})
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	if _, err := s.jobStore.UpdateStatus(r.Context(), job.ID, domain.JobStatusQueued); err != nil {
		s.logger.Printf("update status failed job_id=%s err=%v", job.ID, err)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":     job.ID,
		"status":     domain.JobStatusQueued,
		"queue":      taskInfo.Queue,
		"task_id":    taskInfo.ID,
		"source_key": job.SourceKey,
		"status_url": fmt.Sprintf("/v1/print/jobs/%s", job.ID),
	})
}

func (s *Server) handleGetPrintJob(w http.ResponseWriter, r *http.Request) {
	if s.jobStore == nil {
		writeUnavailable(w, "print jobs")
		return
	}

	jobID := strings.TrimSpace(r.PathValue("id"))
	if jobID == "" {
		s.writeError(w, r, fmt.Errorf("%w: job id is required", errBadRequest))
		return
	}

	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Printf("fetch job failed job_id=%s err=%v", jobID, err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "failed to load job", Code: "store_error"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "job not found", Code: "not_found"})
		return
	}

	resp := jobResponse{
		JobID:     job.ID,
		Status:    job.Status,
		OutputKey: job.OutputKey,
		FileSize:  job.FileSize,
		Error:     job.Error,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if job.Status == domain.JobStatusSucceeded {
		resp.Dimensions = &dimensions{Width: job.Width, Height: job.Height, DPI: job.DPI}
		if job.OutputKey != "" && s.storage != nil {
			url, err := s.storage.PresignedGetURL(r.Context(), job.OutputKey, "print-"+job.ID+".png", s.opts.PresignTTL)
			if err != nil {
				s.logger.Printf("presign output failed job_id=%s err=%v", job.ID, err)
			} else {
				resp.DownloadURL = url
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
