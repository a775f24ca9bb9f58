package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/nadzzz/islandgreet/internal/config"
)

func TestMetricsExposed(t *testing.T) {
	p, err := Setup(context.Background(), config.TelemetryConfig{ServiceName: "islandgreet-test", Metrics: true}, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	require.NotNil(t, p.MetricsHandler)

	counter, err := p.Meter.Meter("test").Int64Counter("greetings_test_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 3, metric.WithAttributes(attribute.String("flavor", "standard")))

	rec := httptest.NewRecorder()
	p.MetricsHandler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "greetings_test_total")
	assert.Contains(t, string(body), `flavor="standard"`)
}

func TestMetricsDisabled(t *testing.T) {
	p, err := Setup(context.Background(), config.TelemetryConfig{ServiceName: "islandgreet-test"}, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	assert.Nil(t, p.MetricsHandler)
	assert.NotNil(t, p.Meter)
	assert.NotNil(t, p.Tracer)
}

func TestStdoutTracing(t *testing.T) {
	p, err := Setup(context.Background(), config.TelemetryConfig{ServiceName: "islandgreet-test", TraceStdout: true}, "test")
	require.NoError(t, err)

	_, span := p.Tracer.Tracer("test").Start(context.Background(), "op")
	span.End()
	assert.NoError(t, p.Shutdown(context.Background()))
}
