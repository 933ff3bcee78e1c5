package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dunamismax/printflow/internal/domain"
	"github.com/dunamismax/printflow/internal/imgerr"
	"github.com/dunamismax/printflow/internal/media"
	"github.com/dunamismax/printflow/internal/pipeline"
	"github.com/dunamismax/printflow/internal/queue"
	"github.com/dunamismax/printflow/internal/screenshot"
	"github.com/dunamismax/printflow/internal/store"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultMaxBodyBytes = 32 << 20

type Server struct {
	logger      *log.Logger
	queueClient queueEnqueuer
	jobStore    store.JobStore
	storage     objectStorage
	screenshots *screenshot.Service
	processor   *pipeline.Processor
	prober      videoProber
	rateLimiter RateLimiter
	metrics     *metrics
	tracer      trace.Tracer
	opts        Options
	mux         *http.ServeMux
}

// Deps are the collaborators behind the HTTP surface. Any of them may be nil;
// the routes that need a missing collaborator answer 503.
type Deps struct {
	Queue       queueEnqueuer
	Jobs        store.JobStore
	Storage     objectStorage
	Screenshots *screenshot.Service
	Processor   *pipeline.Processor
	Prober      videoProber
	RateLimiter RateLimiter
}

type Options struct {
	MaxBodyBytes   int64
	PresignTTL     time.Duration
	DefaultDPI     int
	DefaultQuality int
	UserIDHeader   string
}

type queueEnqueuer interface {
	EnqueueProcessPrint(ctx context.Context, payload queue.ProcessPrintPayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
	PresignedGetURL(ctx context.Context, objectKey, fileName string, expiry time.Duration) (string, error)
}

type videoProber interface {
	Probe(ctx context.Context, videoURL string) (media.VideoInfo, error)
}

func NewServer(logger *log.Logger, deps Deps, opts Options) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	if opts.DefaultDPI <= 0 {
		opts.DefaultDPI = domain.DefaultPrintDPI
	}
	if opts.DefaultQuality <= 0 {
		opts.DefaultQuality = domain.DefaultScreenshotQuality
	}
	if strings.TrimSpace(opts.UserIDHeader) == "" {
		opts.UserIDHeader = "X-User-ID"
	}

	s := &Server{
		logger:      logger,
		queueClient: deps.Queue,
		jobStore:    deps.Jobs,
		storage:     deps.Storage,
		screenshots: deps.Screenshots,
		processor:   deps.Processor,
		prober:      deps.Prober,
		rateLimiter: deps.RateLimiter,
		metrics:     newMetrics(),
		tracer:      otel.Tracer("printflow/api"),
		opts:        opts,
		mux:         http.NewServeMux(),
	}
	s.routes()
	return s
}

// Handler returns the routed mux wrapped in metrics, tracing and rate
// limiting, outermost first.
func (s *Server) Handler() http.Handler {
	return s.metrics.withHTTPMetrics(s.withTracing(s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())

	s.mux.HandleFunc("POST /v1/screenshots", s.handleScreenshot)
	s.mux.HandleFunc("POST /v1/screenshots/batch", s.handleScreenshotBatch)
	s.mux.HandleFunc("POST /v1/screenshots/feather", s.handleFeatherPreview)
	s.mux.HandleFunc("POST /v1/screenshots/corner-radius", s.handleCornerRadiusPreview)
	s.mux.HandleFunc("GET /v1/videos/probe", s.handleProbe)

	s.mux.HandleFunc("POST /v1/print", s.handlePrint)
	s.mux.HandleFunc("POST /v1/print/jobs", s.handleCreatePrintJob)
	s.mux.HandleFunc("GET /v1/print/jobs/{id}", s.handleGetPrintJob)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	DPI    int `json:"dpi,omitempty"`
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

// errorStatus maps a failure onto the HTTP status and machine-readable code
// returned to callers.
func errorStatus(err error) (int, string) {
	switch {
	case domain.IsValidationError(err), errors.Is(err, pipeline.ErrInvalidSpec), errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return 499, "cancelled"
	}

	switch kind := imgerr.KindOf(err); kind {
	case imgerr.KindDecode:
		return http.StatusBadRequest, string(kind)
	case imgerr.KindGeometry:
		return http.StatusUnprocessableEntity, string(kind)
	case imgerr.KindMedia:
		return http.StatusBadGateway, string(kind)
	case imgerr.KindEncode:
		return http.StatusInternalServerError, string(kind)
	}
	return http.StatusInternalServerError, "internal_error"
}

var (
	errBadRequest  = errors.New("bad request")
	errUnavailable = errors.New("service dependency is not configured")
)

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	s.metrics.failures.WithLabelValues(routeLabel(r.URL.Path), code).Inc()
	message := err.Error()
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusGatewayTimeout {
		s.logger.Printf("request failed method=%s path=%s code=%s err=%v", r.Method, r.URL.Path, code, err)
		message = "internal processing error"
		if code == string(imgerr.KindEncode) {
			message = "failed to encode image"
		}
	}
	writeJSON(w, status, errorBody{Success: false, Error: message, Code: code})
}

func writeUnavailable(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusServiceUnavailable, errorBody{
		Success: false,
		Error:   fmt.Sprintf("%s: %s", errUnavailable, what),
		Code:    "unavailable",
	})
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, into any) error {
	limited := http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("%w: invalid JSON body: multiple JSON values are not allowed", errBadRequest)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) userID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(s.opts.UserIDHeader))
}
