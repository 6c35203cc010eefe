// Package metrics exposes the server's Prometheus collectors.
package metrics

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"pkt.systems/pslog"
)

var (
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lending_connections_active",
		Help: "Number of currently open client connections.",
	})

	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lending_commands_total",
		Help: "Commands processed, by verb and outcome.",
	}, []string{"verb", "outcome"})

	ItemsBorrowed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lending_items_borrowed",
		Help: "Number of catalog items currently lent out.",
	})

	WaitersBlocked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lending_waiters_blocked",
		Help: "Number of clients currently blocked in WAIT.",
	})
)

// Serve starts the Prometheus scrape endpoint on addr. The returned server
// is shut down by the caller.
func Serve(addr string, logger pslog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server error", "error", err)
		}
	}()

	logger.Info("metrics listening", "address", ln.Addr().String())
	return srv, nil
}
