package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the ledger counters. A nil Registerer leaves them
// unregistered, which tests rely on.
type Metrics struct {
	InvoicesCreated     prometheus.Counter
	SettlementsCredited prometheus.Counter
	SettlementsAbsorbed prometheus.Counter
	SettlementsRejected prometheus.Counter
	InvoicesExpired     prometheus.Counter
	UpstreamFailures    *prometheus.CounterVec
	ScanBatchSize       prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		InvoicesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lnwallet",
			Name:      "invoices_created_total",
			Help:      "Invoices issued and persisted as pending.",
		}),
		SettlementsCredited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lnwallet",
			Name:      "settlements_credited_total",
			Help:      "Settlements that moved an invoice to paid and credited its wallet.",
		}),
		SettlementsAbsorbed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lnwallet",
			Name:      "settlements_absorbed_total",
			Help:      "Duplicate or late settlements ignored by reconciliation.",
		}),
		SettlementsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lnwallet",
			Name:      "settlements_rejected_total",
			Help:      "Settlements below the invoice amount; the invoice is moved to error.",
		}),
		InvoicesExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lnwallet",
			Name:      "invoices_expired_total",
			Help:      "Pending invoices moved to expired.",
		}),
		UpstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lnwallet",
			Name:      "upstream_failures_total",
			Help:      "Failed calls to the Lightning node by operation.",
		}, []string{"op"}),
		ScanBatchSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lnwallet",
			Name:      "scan_batch_size",
			Help:      "Current batch size of the pending invoice scan.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.InvoicesCreated,
			m.SettlementsCredited,
			m.SettlementsAbsorbed,
			m.SettlementsRejected,
			m.InvoicesExpired,
			m.UpstreamFailures,
			m.ScanBatchSize,
		)
	}
	return m
}
