package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/dunamismax/printflow/internal/domain"
	"github.com/dunamismax/printflow/internal/screenshot"
)

type screenshotResponse struct {
	Success    bool       `json:"success"`
	Screenshot string     `json:"screenshot"`
	Timestamp  float64    `json:"timestamp"`
	Dimensions dimensions `json:"dimensions"`
	FileSize   int        `json:"file_size"`
}

type batchFailure struct {
	Timestamp float64 `json:"timestamp"`
	Error     string  `json:"error"`
	Code      string  `json:"code"`
}

type batchResponse struct {
	Success     bool                 `json:"success"`
	Screenshots []screenshotResponse `json:"screenshots"`
	Errors      []batchFailure       `json:"errors"`
}

type encodedImageResponse struct {
	Success      bool       `json:"success"`
	EncodedImage string     `json:"encoded_image"`
	Dimensions   dimensions `json:"dimensions"`
	FileSize     int        `json:"file_size"`
}

func shotResponse(shot screenshot.Shot) screenshotResponse {
	return screenshotResponse{
		Success:    true,
		Screenshot: shot.DataURI(),
		Timestamp:  shot.Timestamp,
		Dimensions: dimensions{Width: shot.Width, Height: shot.Height},
		FileSize:   len(shot.Data),
	}
}

func (s *Server) quality(q int) int {
	if q <= 0 {
		return s.opts.DefaultQuality
	}
	return q
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	if s.screenshots == nil {
		writeUnavailable(w, "screenshots")
		return
	}

	var req domain.ScreenshotRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	var crop domain.Crop
	if req.Crop != nil {
		parsed, err := req.Crop.Parse()
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		crop = parsed
	}

	shot, err := s.screenshots.Capture(r.Context(), req.VideoURL, req.Timestamp, s.quality(req.Quality), crop)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, shotResponse(shot))
}

func (s *Server) handleScreenshotBatch(w http.ResponseWriter, r *http.Request) {
	if s.screenshots == nil {
		writeUnavailable(w, "screenshots")
		return
	}

	var req domain.BatchScreenshotRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	shots, failures := s.screenshots.CaptureMany(r.Context(), req.VideoURL, req.Timestamps, s.quality(req.Quality))

	resp := batchResponse{
		Success:     len(shots) > 0,
		Screenshots: make([]screenshotResponse, 0, len(shots)),
		Errors:      make([]batchFailure, 0, len(failures)),
	}
	for _, shot := range shots {
		resp.Screenshots = append(resp.Screenshots, shotResponse(shot))
	}
	for _, f := range failures {
		_, code := errorStatus(f.Err)
		resp.Errors = append(resp.Errors, batchFailure{Timestamp: f.Timestamp, Error: f.Err.Error(), Code: code})
	}

	// A batch where every timestamp failed is reported with the status of
	// the first failure; partial batches succeed.
	if len(shots) == 0 && len(failures) > 0 {
		status, _ := errorStatus(failures[0].Err)
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFeatherPreview(w http.ResponseWriter, r *http.Request) {
	if s.screenshots == nil {
		writeUnavailable(w, "screenshots")
		return
	}

	var req domain.FeatherPreviewRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	shot, err := s.screenshots.FeatherOnly(r.Context(), req.Image, req.FeatherEdgePercent)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodedImage(shot))
}

func (s *Server) handleCornerRadiusPreview(w http.ResponseWriter, r *http.Request) {
	if s.screenshots == nil {
		writeUnavailable(w, "screenshots")
		return
	}

	var req domain.CornerRadiusPreviewRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	shot, err := s.screenshots.CornerRadiusOnly(r.Context(), req.Image, req.CornerRadiusPercent)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodedImage(shot))
}

func encodedImage(shot screenshot.Shot) encodedImageResponse {
	return encodedImageResponse{
		Success:      true,
		EncodedImage: shot.DataURI(),
		Dimensions:   dimensions{Width: shot.Width, Height: shot.Height},
		FileSize:     len(shot.Data),
	}
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	if s.prober == nil {
		writeUnavailable(w, "video probe")
		return
	}

	videoURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if videoURL == "" {
		s.writeError(w, r, fmt.Errorf("%w: url query parameter is required", errBadRequest))
		return
	}

	info, err := s.prober.Probe(r.Context(), videoURL)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"duration":   info.Duration,
		"width":      info.Width,
		"height":     info.Height,
		"frame_rate": info.FrameRate,
	})
}
