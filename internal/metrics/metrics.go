// Package metrics exposes Prometheus instrumentation for streaming
// and capture activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/camkit/camserver/internal/events"
)

var (
	viewers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camserver",
		Subsystem: "stream",
		Name:      "viewers",
		Help:      "Connected viewers per device and transport",
	}, []string{"device", "transport"})

	transcoderExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camserver",
		Subsystem: "stream",
		Name:      "transcoder_exits_total",
		Help:      "Transcoder process exits by kind",
	}, []string{"device", "requested"})

	capturesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camserver",
		Subsystem: "capture",
		Name:      "frames_total",
		Help:      "Capture attempts by outcome",
	}, []string{"outcome"})

	timelapsesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "camserver",
		Subsystem: "capture",
		Name:      "timelapses_total",
		Help:      "Finished timelapse assemblies",
	})
)

// Observe wires the collectors to the event bus. The returned function
// detaches them.
func Observe(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.StreamStartedEvent) {
			viewers.WithLabelValues(e.DeviceID, e.Transport).Set(float64(e.Viewers))
		}),
		// Stops fire only when the last viewer leaves.
		bus.Subscribe(func(e events.StreamStoppedEvent) {
			viewers.WithLabelValues(e.DeviceID, e.Transport).Set(0)
		}),
		bus.Subscribe(func(e events.TranscoderExitEvent) {
			requested := "false"
			if e.Requested {
				requested = "true"
			}
			transcoderExits.WithLabelValues(e.DeviceID, requested).Inc()
		}),
		bus.Subscribe(func(e events.CaptureSuccessEvent) {
			capturesTotal.WithLabelValues("success").Inc()
		}),
		bus.Subscribe(func(e events.CaptureErrorEvent) {
			capturesTotal.WithLabelValues("error").Inc()
		}),
		bus.Subscribe(func(e events.TimelapseReadyEvent) {
			timelapsesTotal.Inc()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
