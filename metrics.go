package main

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// metrics are the server's Prometheus collectors. Each Server has its own
// registry.
type metrics struct {
	registry *prometheus.Registry

	connections prometheus.Counter
	clients     prometheus.Gauge
	registered  prometheus.Gauge
	channels    prometheus.Gauge
	commands    *prometheus.CounterVec
	bytesIn     prometheus.Counter
	bytesOut    prometheus.Counter
}

func newMetrics() *metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &metrics{
		registry: reg,

		connections: factory.NewCounter(prometheus.CounterOpts{
			Name: "ircserv_connections_total",
			Help: "Connections accepted",
		}),
		clients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ircserv_clients",
			Help: "Connected clients",
		}),
		registered: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ircserv_registered_clients",
			Help: "Clients that completed registration",
		}),
		channels: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ircserv_channels",
			Help: "Channels with at least one member",
		}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ircserv_commands_total",
			Help: "Commands received by verb",
		}, []string{"command"}),
		bytesIn: factory.NewCounter(prometheus.CounterOpts{
			Name: "ircserv_received_bytes_total",
			Help: "Bytes read from clients",
		}),
		bytesOut: factory.NewCounter(prometheus.CounterOpts{
			Name: "ircserv_sent_bytes_total",
			Help: "Bytes written to clients",
		}),
	}
}

// countCommand records a command. Unknown verbs share one label so clients
// can't grow the label set.
func (m *metrics) countCommand(verb string) {
	if _, exists := commands[verb]; !exists {
		verb = "unknown"
	}
	m.commands.WithLabelValues(verb).Inc()
}

// router serves the registry on /metrics and a liveness check on /healthz.
func (m *metrics) router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(m.registry,
		promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
	return r
}

// metricsServer serves metrics over HTTP on its own goroutine. It only reads
// collectors so it never touches the event loop's state.
type metricsServer struct {
	server   *http.Server
	listener net.Listener
}

func startMetricsServer(m *metrics, addr string,
	onError func(error)) (*metricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "error listening for metrics")
	}

	srv := &http.Server{
		Handler:           m.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			onError(err)
		}
	}()

	return &metricsServer{server: srv, listener: ln}, nil
}

// Addr is where the server listens.
func (s *metricsServer) Addr() string {
	return s.listener.Addr().String()
}

func (s *metricsServer) stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
