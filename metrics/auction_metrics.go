package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var CreateRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gavel",
	Name:      "create_requests_total",
	Help:      "Total number of auction creation requests seen by the service.",
}, []string{"chain_id", "result"})

var BidsSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gavel",
	Name:      "bids_submitted_total",
	Help:      "Total number of bids submitted to the service.",
}, []string{"chain_id", "result"})

var DepositsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gavel",
	Name:      "deposits_total",
	Help:      "Total native units escrowed through accepted bids.",
}, []string{"chain_id"})

var CancelRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gavel",
	Name:      "cancel_requests_total",
	Help:      "Total number of cancellation requests seen by the service.",
}, []string{"chain_id", "result"})

var WithdrawalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gavel",
	Name:      "withdrawals_total",
	Help:      "Total number of withdrawal requests seen by the service.",
}, []string{"chain_id", "result"})

var PayoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gavel",
	Name:      "payouts_total",
	Help:      "Total native units paid out through successful withdrawals.",
}, []string{"chain_id"})
