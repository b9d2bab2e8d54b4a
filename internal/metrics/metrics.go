package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus instruments for the gateway. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	relayReceipts  *prometheus.CounterVec
	quotaDecisions *prometheus.CounterVec
	batchItems     *prometheus.CounterVec
	batchDuration  prometheus.Histogram
	cacheLookups   *prometheus.CounterVec
	ledgerCalls    *prometheus.HistogramVec
	relayerBalance prometheus.Gauge
	ingestMessages *prometheus.CounterVec
}

// New registers the gateway instruments with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		relayReceipts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_gateway_receipts_total",
			Help: "Relay receipts by status.",
		}, []string{"status"}),
		quotaDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_gateway_quota_decisions_total",
			Help: "Quota charge attempts by tier and outcome.",
		}, []string{"tier", "outcome"}),
		batchItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_gateway_batch_items_total",
			Help: "Batch items by outcome.",
		}, []string{"outcome"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_gateway_batch_duration_seconds",
			Help:    "Wall time of a whole batch.",
			Buckets: prometheus.DefBuckets,
		}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_gateway_cache_lookups_total",
			Help: "Read cache lookups by key family and result.",
		}, []string{"family", "result"}),
		ledgerCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_gateway_ledger_call_duration_seconds",
			Help:    "Ledger RPC latency by method and status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status"}),
		relayerBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_gateway_relayer_balance",
			Help: "Relayer account balance in native currency.",
		}),
		ingestMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_gateway_ingest_messages_total",
			Help: "Queue ingest messages by outcome.",
		}, []string{"outcome"}),
	}

	collectors := []prometheus.Collector{
		m.relayReceipts,
		m.quotaDecisions,
		m.batchItems,
		m.batchDuration,
		m.cacheLookups,
		m.ledgerCalls,
		m.relayerBalance,
		m.ingestMessages,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) RecordReceipt(status string) {
	if m == nil {
		return
	}
	m.relayReceipts.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordQuotaDecision(tier, outcome string) {
	if m == nil {
		return
	}
	m.quotaDecisions.WithLabelValues(tier, outcome).Inc()
}

func (m *Metrics) RecordBatch(successes, failures int, d time.Duration) {
	if m == nil {
		return
	}
	m.batchItems.WithLabelValues("success").Add(float64(successes))
	m.batchItems.WithLabelValues("failure").Add(float64(failures))
	m.batchDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordCacheLookup(family string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(family, result).Inc()
}

func (m *Metrics) ObserveLedgerCall(method string, d time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ledgerCalls.WithLabelValues(method, status).Observe(d.Seconds())
}

func (m *Metrics) SetRelayerBalance(v float64) {
	if m == nil {
		return
	}
	m.relayerBalance.Set(v)
}

func (m *Metrics) RecordIngestMessage(outcome string) {
	if m == nil {
		return
	}
	m.ingestMessages.WithLabelValues(outcome).Inc()
}
