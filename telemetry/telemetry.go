// Package telemetry provides the management bootstrap capability that the
// platform measurement backends declare as a prerequisite. It owns the
// process metrics namespace; the measurement hot path itself records no
// metrics.
package telemetry

import (
	"net/http"

	metrics "github.com/docker/go-metrics"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/moby/threadtime/capability"
)

// Capability is the registry name of the telemetry bootstrap.
const Capability = "telemetry.bootstrap"

// Bootstrap owns the metrics namespace shared by the thread time tooling.
type Bootstrap struct {
	ns             *metrics.Namespace
	backendInfo    metrics.LabeledGauge
	sampleTimer    metrics.Timer
	sampleFailures metrics.Counter
}

func init() {
	capability.RegisterInit(capability.Registration{
		Capability: Capability,
		Init:       newBootstrap,
	})
}

func newBootstrap(*capability.InitContext) (any, error) {
	ns := metrics.NewNamespace("threadtime", "", nil)
	b := &Bootstrap{
		ns:             ns,
		backendInfo:    ns.NewLabeledGauge("backend", "The platform backend installed for thread CPU time measurement", metrics.Unit("info"), "platform"),
		sampleTimer:    ns.NewTimer("sample", "The number of seconds it takes to read a thread CPU clock"),
		sampleFailures: ns.NewCounter("sample_failures", "The total number of failed thread CPU time reads"),
	}
	metrics.Register(ns)
	return b, nil
}

// MarkBackend records which platform backend was installed. Called once by
// the backend's initializer.
func (b *Bootstrap) MarkBackend(platform string) {
	b.backendInfo.WithValues(platform).Set(1)
}

// SampleTimer times clock reads performed by callers that opt into
// instrumentation, such as the CLI sampling loop.
func (b *Bootstrap) SampleTimer() metrics.Timer {
	return b.sampleTimer
}

// SampleFailures counts failed clock reads observed by instrumented callers.
func (b *Bootstrap) SampleFailures() metrics.Counter {
	return b.sampleFailures
}

// Handler serves the collected metrics in prometheus exposition format.
func (b *Bootstrap) Handler() http.Handler {
	return promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Lookup fetches the installed bootstrap from the default capability
// registry.
func Lookup() (*Bootstrap, error) {
	v, err := capability.Get(Capability)
	if err != nil {
		return nil, err
	}
	b, ok := v.(*Bootstrap)
	if !ok {
		return nil, errors.Errorf("unexpected backend type %T for capability %q", v, Capability)
	}
	return b, nil
}
