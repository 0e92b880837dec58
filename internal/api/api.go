// Package api serves the agent's read-only status view: current region
// params and the gateway's operational counters, over plain HTTP/JSON on
// gorilla/mux and gorilla/handlers, trimmed to GETs.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loragw/gateway-agent/internal/broadcast"
	"github.com/loragw/gateway-agent/internal/log"
	"github.com/loragw/gateway-agent/internal/metrics"
	"github.com/loragw/gateway-agent/internal/region"
	"github.com/loragw/gateway-agent/key"
)

// Server is the status API task.
type Server struct {
	addr     string
	regionRx *broadcast.Latest[region.Params]
	kp       *key.Keypair
	counters *metrics.Counters
	log      log.Logger
	srv      *http.Server
}

// Settings configures a Server.
type Settings struct {
	Addr     string
	RegionRx *broadcast.Latest[region.Params]
	Keypair  *key.Keypair
	Counters *metrics.Counters
}

// New builds a status API Server.
func New(s Settings) *Server {
	return &Server{
		addr:     s.Addr,
		regionRx: s.RegionRx,
		kp:       s.Keypair,
		counters: s.Counters,
		log:      log.DefaultLogger().Named("api"),
	}
}

type regionResponse struct {
	Region   string                 `json:"region"`
	Active   bool                   `json:"active"`
	Channels []region.ChannelParam  `json:"channels"`
}

type statusResponse struct {
	Gateway  string           `json:"gateway"`
	Region   regionResponse   `json:"region"`
	Counters metrics.Snapshot `json:"counters"`
}

func (s *Server) handleRegion(w http.ResponseWriter, _ *http.Request) {
	p := s.regionRx.Current()
	writeJSON(w, regionResponse{Region: p.Region, Active: p.Active(), Channels: p.Channels})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	p := s.regionRx.Current()
	writeJSON(w, statusResponse{
		Gateway:  s.kp.PublicBase64(),
		Region:   regionResponse{Region: p.Region, Active: p.Active(), Channels: p.Channels},
		Counters: s.counters.Snapshot(),
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/region", s.handleRegion).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{Registry: metrics.Registry})).Methods(http.MethodGet)
	return handlers.LoggingHandler(logWriter{s.log}, r)
}

// logWriter adapts our Logger to the io.Writer gorilla/handlers wants for
// its access-log middleware.
type logWriter struct{ l log.Logger }

func (w logWriter) Write(p []byte) (int, error) {
	w.l.Debugw("access", "line", string(p))
	return len(p), nil
}

// Run serves the status API until shutdown fires.
func (s *Server) Run(shutdown <-chan struct{}) error {
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-shutdown:
		return s.srv.Close()
	case err := <-errCh:
		return err
	}
}
