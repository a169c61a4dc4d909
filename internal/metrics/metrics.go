// Package metrics exposes Prometheus counters for the ledger, cache and linking flow.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector is what the services record into.
type MetricsCollector interface {
	RecordCaseCreated(actionType string)
	RecordCaseIDCollision()
	RecordCaseIDExhausted()
	RecordCacheLookup(kind string, hit bool)
	RecordLinkIssued(platform string)
	RecordLinkOutcome(platform, status string)
}

// Collector is the Prometheus-backed MetricsCollector.
type Collector struct {
	casesCreated *prometheus.CounterVec
	idCollisions prometheus.Counter
	idExhausted  prometheus.Counter
	cacheLookups *prometheus.CounterVec
	linksIssued  *prometheus.CounterVec
	linkOutcomes *prometheus.CounterVec
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		casesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zahra_cases_created_total",
			Help: "Moderation cases recorded, by action type.",
		}, []string{"action"}),
		idCollisions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zahra_case_id_collisions_total",
			Help: "Generated case ids that already existed.",
		}),
		idExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zahra_case_id_exhausted_total",
			Help: "Case creations that ran out of id attempts.",
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zahra_cache_lookups_total",
			Help: "Cache lookups by kind and result.",
		}, []string{"kind", "result"}),
		linksIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zahra_link_tokens_issued_total",
			Help: "Linking tokens issued, by platform.",
		}, []string{"platform"}),
		linkOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zahra_link_outcomes_total",
			Help: "Resolved linking attempts, by platform and status.",
		}, []string{"platform", "status"}),
	}

	reg.MustRegister(
		c.casesCreated,
		c.idCollisions,
		c.idExhausted,
		c.cacheLookups,
		c.linksIssued,
		c.linkOutcomes,
	)
	return c
}

func (c *Collector) RecordCaseCreated(actionType string) {
	c.casesCreated.WithLabelValues(actionType).Inc()
}

func (c *Collector) RecordCaseIDCollision() {
	c.idCollisions.Inc()
}

func (c *Collector) RecordCaseIDExhausted() {
	c.idExhausted.Inc()
}

func (c *Collector) RecordCacheLookup(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	c.cacheLookups.WithLabelValues(kind, result).Inc()
}

func (c *Collector) RecordLinkIssued(platform string) {
	c.linksIssued.WithLabelValues(platform).Inc()
}

func (c *Collector) RecordLinkOutcome(platform, status string) {
	c.linkOutcomes.WithLabelValues(platform, status).Inc()
}

// Handler serves the metrics registered in g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Nop discards everything. Used where metrics are not wired, e.g. the admin CLI.
type Nop struct{}

func (Nop) RecordCaseCreated(string)         {}
func (Nop) RecordCaseIDCollision()           {}
func (Nop) RecordCaseIDExhausted()           {}
func (Nop) RecordCacheLookup(string, bool)   {}
func (Nop) RecordLinkIssued(string)          {}
func (Nop) RecordLinkOutcome(string, string) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
