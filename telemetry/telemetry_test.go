package telemetry

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	metrics "github.com/docker/go-metrics"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"

	"github.com/moby/threadtime/capability"
)

var (
	bootstrapOnce sync.Once
	bootstrapErr  error
)

func bootstrapTelemetry(t *testing.T) *Bootstrap {
	t.Helper()
	bootstrapOnce.Do(func() {
		bootstrapErr = capability.Bootstrap(context.Background())
	})
	assert.NilError(t, bootstrapErr)
	b, err := Lookup()
	assert.NilError(t, err)
	return b
}

func TestBootstrapInstallsTelemetry(t *testing.T) {
	b := bootstrapTelemetry(t)

	b.MarkBackend("test")
	b.SampleFailures().Inc()
	done := metrics.StartTimer(b.SampleTimer())
	done()
}

func TestHandlerServesNamespace(t *testing.T) {
	b := bootstrapTelemetry(t)
	b.MarkBackend("test")

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Check(t, is.Equal(rec.Code, 200))
	assert.Check(t, is.Contains(rec.Body.String(), "threadtime_backend"))
	assert.Check(t, is.Contains(rec.Body.String(), "threadtime_sample"))
}
