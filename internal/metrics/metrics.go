package metrics

import (
	"context"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds the service instruments. A nil *Metrics records nothing.
type Metrics struct {
	HTTPRequests       metric.Int64Counter
	HTTPDuration       metric.Float64Histogram
	Logins             metric.Int64Counter
	PostSaves          metric.Int64Counter
	AttachmentFailures metric.Int64Counter
	BlobDeleteFailures metric.Int64Counter
}

// Setup wires an OpenTelemetry meter provider to a private Prometheus registry and
// returns the instruments plus the scrape handler.
func Setup(serviceName string) (*Metrics, http.Handler, error) {
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(serviceName)

	m := &Metrics{}

	m.HTTPRequests, err = meter.Int64Counter(
		"cms_http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPDuration, err = meter.Float64Histogram(
		"cms_http_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.Logins, err = meter.Int64Counter(
		"cms_logins_total",
		metric.WithDescription("Login attempts by method and result"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PostSaves, err = meter.Int64Counter(
		"cms_post_saves_total",
		metric.WithDescription("Committed post saves by kind"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.AttachmentFailures, err = meter.Int64Counter(
		"cms_attachment_failures_total",
		metric.WithDescription("Attachment uploads abandoned during a post save"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.BlobDeleteFailures, err = meter.Int64Counter(
		"cms_blob_delete_failures_total",
		metric.WithDescription("Superseded blobs that could not be deleted"),
	)
	if err != nil {
		return nil, nil, err
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m, handler, nil
}

func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	)
	m.HTTPRequests.Add(ctx, 1, attrs)
	m.HTTPDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordLogin method is "local" or "oauth"; result is "ok" or a failure class.
func (m *Metrics) RecordLogin(ctx context.Context, method, result string) {
	if m == nil {
		return
	}
	m.Logins.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("result", result),
	))
}

func (m *Metrics) RecordPostSave(ctx context.Context, isNew bool) {
	if m == nil {
		return
	}
	kind := "edit"
	if isNew {
		kind = "create"
	}
	m.PostSaves.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordAttachmentFailure(ctx context.Context, op string) {
	if m == nil {
		return
	}
	m.AttachmentFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

func (m *Metrics) RecordBlobDeleteFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.BlobDeleteFailures.Add(ctx, 1)
}
