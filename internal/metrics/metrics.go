// Package metrics holds the Prometheus instruments for balance-affecting
// operations, served at /metrics in text exposition format.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FundChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_fund_changes_total",
			Help: "Fund-type balance mutations",
		},
		[]string{"fund_type", "outcome"},
	)

	Transfers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_transfers_total",
			Help: "Internal transfer executions by terminal outcome",
		},
		[]string{"outcome"},
	)

	OrdersPlaced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_orders_total",
			Help: "Orders placed",
		},
		[]string{"side", "initiator"},
	)

	PositionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_positions_closed_total",
			Help: "Position closes (full or partial)",
		},
		[]string{"kind"},
	)

	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backoffice_webhook_events_total",
			Help: "Inbound platform webhook events",
		},
		[]string{"event", "outcome"},
	)
)
