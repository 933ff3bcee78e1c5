package telemetry

import (
	"context"
	"fmt"
	"log"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ServiceNamespace groups the api and worker services in trace backends.
const ServiceNamespace = "printflow"

type TraceConfig struct {
	ServiceName string
	// Component is the process role (api or worker). It suffixes the
	// service name and is recorded as a resource attribute.
	Component string
	// RasterBackend names the resampling engine compiled in, so slow
	// resize spans can be told apart by backend.
	RasterBackend string
	Exporter      string
	OTLPEndpoint  string
	OTLPInsecure  bool
	// SampleRatio is the fraction of root traces kept; values outside (0,1]
	// keep every trace.
	SampleRatio float64
}

// SetupTracing installs the global tracer provider used by the API, worker
// and print pipeline spans. The returned func flushes pending spans.
func SetupTracing(ctx context.Context, cfg TraceConfig, logger *log.Logger) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	exporterName := strings.ToLower(strings.TrimSpace(cfg.Exporter))
	if exporterName == "" || exporterName == "none" {
		if logger != nil {
			logger.Printf("tracing exporter disabled")
		}
		return func(context.Context) error { return nil }, nil
	}

	var (
		exp sdktrace.SpanExporter
		err error
	)

	switch exporterName {
	case "stdout":
		exp, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		if strings.TrimSpace(cfg.OTLPEndpoint) == "" {
			return nil, fmt.Errorf("otlp trace exporter requires endpoint")
		}
		opts := []otlptracehttp.Option{
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exp, err = otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, resourceAttributes(cfg)...),
	)
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)
	if logger != nil {
		logger.Printf("tracing exporter enabled type=%s service=%s raster_backend=%s", exporterName, serviceName(cfg), cfg.RasterBackend)
	}

	return tp.Shutdown, nil
}

func serviceName(cfg TraceConfig) string {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = ServiceNamespace
	}
	if component := strings.TrimSpace(cfg.Component); component != "" {
		name += "-" + component
	}
	return name
}

func resourceAttributes(cfg TraceConfig) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(serviceName(cfg)),
		semconv.ServiceNamespace(ServiceNamespace),
	}
	if cfg.Component != "" {
		attrs = append(attrs, attribute.String("printflow.component", cfg.Component))
	}
	if cfg.RasterBackend != "" {
		attrs = append(attrs, attribute.String("printflow.raster.backend", cfg.RasterBackend))
	}
	return attrs
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}
