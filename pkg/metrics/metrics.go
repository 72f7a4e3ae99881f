// Package metrics defines the gateway's Prometheus instruments and the
// standalone metrics endpoint.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// ActiveConnections tracks the number of live WebSocket connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "balance_gateway_active_connections",
		Help: "Number of live WebSocket connections",
	})

	// AuthFailures counts rejected handshakes by reason.
	AuthFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "balance_gateway_auth_failures_total",
		Help: "Handshakes rejected at authentication",
	}, []string{"reason"})

	// EventsReceived counts balance events consumed from the channel by kind.
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "balance_gateway_events_received_total",
		Help: "Balance events received from the pub/sub channel",
	}, []string{"kind"})

	// FramesDelivered counts frames accepted by client send buffers by type.
	FramesDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "balance_gateway_frames_delivered_total",
		Help: "Frames delivered to client send buffers",
	}, []string{"type"})

	// FramesDropped counts frames dropped because a send buffer was full.
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "balance_gateway_frames_dropped_total",
		Help: "Frames dropped due to full client send buffers",
	})

	// EventsDiscarded counts channel payloads dropped before delivery.
	EventsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "balance_gateway_events_discarded_total",
		Help: "Channel payloads discarded before room delivery",
	}, []string{"reason"})
)

// Serve exposes /metrics on its own listener. Blocks; run on a goroutine.
func Serve(addr string, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	log.Info("serving metrics", zap.String("address", addr))
	return srv.ListenAndServe()
}
