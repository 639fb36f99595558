// Package metrics exposes Prometheus counters and gauges for the publish
// and take paths, grounded on the vars-plus-sync.Once registration pattern
// used elsewhere in the example corpus for instrumenting a hot path.
package metrics

import (
	"sync"

	prom "github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	publishes = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "hazcat",
		Name:      "publishes_total",
		Help:      "Total successful publish calls, by topic.",
	}, []string{"topic"})

	takes = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "hazcat",
		Name:      "takes_total",
		Help:      "Total take calls that returned a message, by topic.",
	}, []string{"topic"})

	takesEmpty = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "hazcat",
		Name:      "takes_empty_total",
		Help:      "Total take calls that found no message, by topic.",
	}, []string{"topic"})

	ringOverwrites = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "hazcat",
		Name:      "ring_overwrites_total",
		Help:      "Total publishes that dropped an undrained slot, by topic.",
	}, []string{"topic"})

	crossDomainMisses = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "hazcat",
		Name:      "cross_domain_misses_total",
		Help:      "Total take calls that materialized a payload into a new domain column.",
	}, []string{"topic", "domain"})

	activeTopics = prom.NewGauge(prom.GaugeOpts{
		Namespace: "hazcat",
		Name:      "active_topics",
		Help:      "Number of topic segments currently open in this process.",
	})

	activeDomains = prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "hazcat",
		Name:      "active_domains",
		Help:      "Number of domain columns bound on a topic, by topic.",
	}, []string{"topic"})
)

// Register installs all metrics with the default Prometheus registry. Safe
// to call more than once; only the first call takes effect.
func Register() {
	registerOnce.Do(func() {
		prom.MustRegister(publishes, takes, takesEmpty, ringOverwrites, crossDomainMisses, activeTopics, activeDomains)
	})
}

// ObservePublish records a successful publish, plus a ring overwrite if the
// claimed slot had to be swept free of an undrained message.
func ObservePublish(topic string, overwrote bool) {
	publishes.WithLabelValues(topic).Inc()
	if overwrote {
		ringOverwrites.WithLabelValues(topic).Inc()
	}
}

// ObserveTake records a take call's outcome.
func ObserveTake(topic string, ok bool) {
	if ok {
		takes.WithLabelValues(topic).Inc()
	} else {
		takesEmpty.WithLabelValues(topic).Inc()
	}
}

// ObserveCrossDomainMiss records a take-path materialization into domain.
func ObserveCrossDomainMiss(topic, domain string) {
	crossDomainMisses.WithLabelValues(topic, domain).Inc()
}

// SetActiveTopics sets the count of topics currently open in this process.
func SetActiveTopics(n int) { activeTopics.Set(float64(n)) }

// SetActiveDomains sets the number of domain columns bound on topic.
func SetActiveDomains(topic string, n int) { activeDomains.WithLabelValues(topic).Set(float64(n)) }
