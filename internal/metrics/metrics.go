// Package metrics tracks the agent's operational counters on a private
// Prometheus registry, the way the teacher's internal/metrics package keeps
// per-concern registries (GroupMetrics, ClientMetrics, ...) and scrapes them
// over promhttp; this agent has one process-wide surface to report rather
// than drand's multi-beacon one, so a single registry suffices.
package metrics

import (
	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"

	"github.com/loragw/gateway-agent/internal/log"
)

// Registry is this agent's metrics registry, scraped by internal/api's
// /metrics endpoint.
var Registry = prometheus.NewRegistry()

// Counters tracks the agent's operational counters, registered against
// Registry at construction. RegionFetchErrors is registered and reported
// like the others, but no component of the agent calls
// IncRegionFetchErrors, so it stays at zero.
type Counters struct {
	BeaconsSent       prometheus.Counter
	WitnessesSent     prometheus.Counter
	ConduitReconnects prometheus.Counter
	RegionFetchErrors prometheus.Counter
}

// NewCounters builds a fresh Counters set and registers it against reg.
// Production wiring passes the package Registry; tests pass a throwaway
// prometheus.NewRegistry() so repeated construction within one process
// never collides on duplicate metric names.
func NewCounters(reg prometheus.Registerer) *Counters {
	c := &Counters{
		BeaconsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatewayd_beacons_sent_total",
			Help: "Number of beacon reports successfully submitted.",
		}),
		WitnessesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatewayd_witnesses_sent_total",
			Help: "Number of witness reports successfully submitted.",
		}),
		ConduitReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatewayd_conduit_reconnects_total",
			Help: "Number of times the router conduit opened a fresh stream.",
		}),
		RegionFetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gatewayd_region_fetch_errors_total",
			Help: "Number of failed region parameter fetches.",
		}),
	}
	reg.MustRegister(c.BeaconsSent, c.WitnessesSent, c.ConduitReconnects, c.RegionFetchErrors)
	return c
}

// BindProcessMetrics registers the standard Go runtime and process
// collectors, plus the grpc_prometheus client-interceptor metrics net.Client
// wires into its dial options, against reg. Mirrors the teacher's
// bindMetrics/RegisterClientMetrics pair.
func BindProcessMetrics(reg prometheus.Registerer, l log.Logger) {
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		l.Warnw("metrics: go collector already registered", "error", err)
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		l.Warnw("metrics: process collector already registered", "error", err)
	}
	if err := reg.Register(grpc_prometheus.DefaultClientMetrics); err != nil {
		l.Warnw("metrics: grpc client metrics already registered", "error", err)
	}
}

// IncBeaconsSent increments the beacons-sent counter.
func (c *Counters) IncBeaconsSent() { c.BeaconsSent.Inc() }

// IncWitnessesSent increments the witnesses-sent counter.
func (c *Counters) IncWitnessesSent() { c.WitnessesSent.Inc() }

// IncConduitReconnects increments the conduit-reconnect counter.
func (c *Counters) IncConduitReconnects() { c.ConduitReconnects.Inc() }

// IncRegionFetchErrors increments the region-fetch-error counter.
func (c *Counters) IncRegionFetchErrors() { c.RegionFetchErrors.Inc() }

// Snapshot is a point-in-time read of every counter, used for the periodic
// log line alongside the /metrics scrape surface.
type Snapshot struct {
	BeaconsSent       float64
	WitnessesSent     float64
	ConduitReconnects float64
	RegionFetchErrors float64
}

// Snapshot reads every counter's current value.
func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		BeaconsSent:       readCounter(c.BeaconsSent),
		WitnessesSent:     readCounter(c.WitnessesSent),
		ConduitReconnects: readCounter(c.ConduitReconnects),
		RegionFetchErrors: readCounter(c.RegionFetchErrors),
	}
}

func readCounter(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

// LogPeriodically logs one snapshot of the counters at Info level and
// returns; the server composition calls it on a ticker from its own
// goroutine, alongside whatever a Prometheus scraper is separately
// collecting off /metrics.
func LogPeriodically(c *Counters, l log.Logger) {
	s := c.Snapshot()
	l.Infow("counters",
		"beacons_sent", s.BeaconsSent,
		"witnesses_sent", s.WitnessesSent,
		"conduit_reconnects", s.ConduitReconnects,
		"region_fetch_errors", s.RegionFetchErrors,
	)
}
