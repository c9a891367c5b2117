package telemetry

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithMetricsDisabledStillProducesUsableProvider(t *testing.T) {
	ctx := context.Background()
	p, err := Init(ctx, Config{NodeID: "node-a"})
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NotNil(t, p.Tracer)
	require.NotNil(t, p.Meter)
	require.NotNil(t, p.Metrics)

	defer func() { _ = p.Shutdown(ctx) }()

	_, span := p.Tracer.Start(ctx, "test-span")
	span.End()
}

func TestMetricsOpsTotalIncrementsAndIsServed(t *testing.T) {
	ctx := context.Background()
	p, err := Init(ctx, Config{NodeID: "node-a", MetricsEnabled: true})
	require.NoError(t, err)
	defer func() { _ = p.Shutdown(ctx) }()

	p.Metrics.OpsTotal.WithLabelValues("allocate", "ok").Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	p.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "payloadmgr_operations_total")
}

func TestShutdownIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p, err := Init(ctx, Config{NodeID: "node-a"})
	require.NoError(t, err)

	require.NoError(t, p.Shutdown(ctx))
	require.NoError(t, p.Shutdown(ctx))
}
