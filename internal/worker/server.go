package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dunamismax/printflow/internal/config"
	"github.com/dunamismax/printflow/internal/domain"
	"github.com/dunamismax/printflow/internal/imgerr"
	"github.com/dunamismax/printflow/internal/pipeline"
	"github.com/dunamismax/printflow/internal/queue"
	"github.com/dunamismax/printflow/internal/storage"
	"github.com/dunamismax/printflow/internal/store"
	"github.com/dunamismax/printflow/internal/webhook"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	logger        *log.Logger
	server        *asynq.Server
	sem           chan struct{}
	runner        printRunner
	webhookClient webhookSender
	jobStore      store.JobStore
	usageStore    store.UsageStore
	metrics       *metrics
	tracer        trace.Tracer
	now           func() time.Time
}

// printRunner renders a stored source into a stored print.
type printRunner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Output, error)
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	runner printRunner,
	webhookClient webhookSender,
	jobStore store.JobStore,
	usageStore store.UsageStore,
) (*Server, error) {
	if runner == nil {
		return nil, fmt.Errorf("print runner is required")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	if usageStore == nil {
		if jobAndUsageStore, ok := jobStore.(store.UsageStore); ok {
			usageStore = jobAndUsageStore
		}
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:           make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		runner:        runner,
		webhookClient: webhookClient,
		jobStore:      jobStore,
		usageStore:    usageStore,
		metrics:       newMetrics(),
		tracer:        otel.Tracer("printflow/worker"),
		now:           time.Now,
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeProcessPrint, s.handleProcessPrint)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleProcessPrint(ctx context.Context, task *asynq.Task) error {
	startedAt := s.now()
	outcome := domain.JobStatusFailed

	payload, err := queue.ParseProcessPrintPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.process_print", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.Int("print.dpi", payload.Options.PrintDPI),
		attribute.Bool("print.crop", payload.Crop != nil),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	s.logger.Printf("working job_id=%s source_key=%s dpi=%d", payload.JobID, payload.SourceKey, payload.Options.PrintDPI)
	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusProcessing)

	spec, err := pipeline.NewSpec(payload.Options, payload.Crop)
	if err != nil {
		return s.fail(ctx, span, payload, err)
	}

	out, err := s.runner.Run(ctx, pipeline.Request{
		JobID:     payload.JobID,
		SourceKey: payload.SourceKey,
		Spec:      spec,
	})
	if err != nil {
		return s.fail(ctx, span, payload, err)
	}

	result := domain.JobResult{
		Status:    domain.JobStatusSucceeded,
		OutputKey: out.ObjectKey,
		Width:     out.Width,
		Height:    out.Height,
		DPI:       out.DPI,
		FileSize:  int64(out.Bytes),
	}
	s.completeJob(ctx, payload.JobID, result)
	s.recordUsage(ctx, payload, out, time.Since(startedAt))

	s.dispatchWebhook(ctx, payload, webhook.EventJobCompleted, webhook.JobEvent{
		JobID:      payload.JobID,
		Status:     result.Status,
		OutputKey:  result.OutputKey,
		Width:      result.Width,
		Height:     result.Height,
		DPI:        result.DPI,
		FileSize:   result.FileSize,
		OccurredAt: s.now().UTC(),
	})

	s.logger.Printf("processed job_id=%s key=%s size=%dx%d", payload.JobID, out.ObjectKey, out.Width, out.Height)
	outcome = domain.JobStatusSucceeded
	span.SetStatus(codes.Ok, "processed")
	return nil
}

// fail records a failed attempt. Input errors and missing sources never
// succeed on retry, so they finish the job and skip asynq retries. Other
// errors are retried while attempts remain and the job goes back to queued.
func (s *Server) fail(ctx context.Context, span trace.Span, payload queue.ProcessPrintPayload, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "print failed")

	permanent := isPermanent(err)
	if !permanent && !finalAttempt(ctx) {
		s.updateJobStatus(ctx, payload.JobID, domain.JobStatusQueued)
		return fmt.Errorf("render print: %w", err)
	}

	s.completeJob(ctx, payload.JobID, domain.JobResult{
		Status: domain.JobStatusFailed,
		Error:  err.Error(),
	})
	s.dispatchWebhook(ctx, payload, webhook.EventJobFailed, webhook.JobEvent{
		JobID:      payload.JobID,
		Status:     domain.JobStatusFailed,
		Error:      err.Error(),
		OccurredAt: s.now().UTC(),
	})

	if permanent {
		return fmt.Errorf("render print: %w: %w", err, asynq.SkipRetry)
	}
	return fmt.Errorf("render print: %w", err)
}

func isPermanent(err error) bool {
	return imgerr.IsInputError(err) ||
		errors.Is(err, pipeline.ErrInvalidSpec) ||
		errors.Is(err, storage.ErrObjectNotFound)
}

// finalAttempt reports whether asynq will not retry this task again. Outside
// an asynq handler every attempt is the last one.
func finalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}

func (s *Server) updateJobStatus(ctx context.Context, jobID, status string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		s.logger.Printf("job status update failed job_id=%s status=%s err=%v", jobID, status, err)
	}
}

func (s *Server) completeJob(ctx context.Context, jobID string, result domain.JobResult) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.Complete(ctx, jobID, result); err != nil {
		s.logger.Printf("job completion failed job_id=%s status=%s err=%v", jobID, result.Status, err)
	}
}

// dispatchWebhook delivers a terminal job event. Delivery failures are logged
// and counted; the render itself already succeeded or failed.
func (s *Server) dispatchWebhook(ctx context.Context, payload queue.ProcessPrintPayload, event string, body webhook.JobEvent) {
	if strings.TrimSpace(payload.WebhookURL) == "" || s.webhookClient == nil {
		return
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.metrics.webhookFailures.WithLabelValues(event).Inc()
		s.logger.Printf("webhook delivery failed job_id=%s event=%s err=%v", payload.JobID, event, err)
	}
}

func (s *Server) recordUsage(ctx context.Context, payload queue.ProcessPrintPayload, out pipeline.Output, computeDuration time.Duration) {
	pixelsProcessed := int64(out.Width) * int64(out.Height)
	computeTimeMS := max(1, computeDuration.Milliseconds())

	s.metrics.pixelsProcessedTotal.Add(float64(pixelsProcessed))
	s.metrics.outputBytesTotal.Add(float64(out.Bytes))
	s.metrics.computeTimeMSTotal.Add(float64(computeTimeMS))

	if s.usageStore == nil {
		return
	}

	usage := domain.UsageLog{
		UserID:          s.usageUserID(ctx, payload),
		JobID:           payload.JobID,
		PixelsProcessed: pixelsProcessed,
		OutputBytes:     int64(out.Bytes),
		ComputeTimeMS:   computeTimeMS,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.usageStore.CreateUsageLog(ctx, usage); err != nil {
		s.logger.Printf("usage log write failed job_id=%s err=%v", payload.JobID, err)
	}
}

func (s *Server) usageUserID(ctx context.Context, payload queue.ProcessPrintPayload) string {
	if userID := strings.TrimSpace(payload.UserID); userID != "" {
		return userID
	}
	if s.jobStore != nil {
		job, ok, err := s.jobStore.Get(ctx, payload.JobID)
		if err != nil {
			s.logger.Printf("usage lookup failed job_id=%s err=%v", payload.JobID, err)
		} else if ok && strings.TrimSpace(job.UserID) != "" {
			return job.UserID
		}
	}
	return "anonymous"
}
