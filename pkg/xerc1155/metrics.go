package xerc1155

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	outboundTransfers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xerc_outbound_transfers_total",
			Help: "Total number of cross-chain transfers dispatched to the gateway",
		}, []string{"chain_id", "dest_chain_id"})
	inboundTransfers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xerc_inbound_transfers_total",
			Help: "Total number of cross-chain transfers minted from the gateway",
		}, []string{"chain_id", "src_chain_id"})
	acksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xerc_acks_received_total",
			Help: "Total number of gateway acknowledgments received, by outcome",
		}, []string{"chain_id", "outcome"})
	rejectedCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xerc_rejected_calls_total",
			Help: "Total number of contract calls that failed and were rolled back, by operation and error kind",
		}, []string{"chain_id", "op", "kind"})
	orphanedDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xerc_orphaned_dispatches_total",
			Help: "Total number of requests accepted by the gateway whose contract call then failed to commit",
		}, []string{"chain_id"})
	skippedDispatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xerc_skipped_empty_dispatches_total",
			Help: "Total number of transfers that moved no tokens and were not dispatched",
		}, []string{"chain_id"})
)
