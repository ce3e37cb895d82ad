package gwrelayer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gwrelayer_requests_accepted_total",
			Help: "Total number of requests accepted by the loopback gateway",
		}, []string{"src_chain_id", "dest_chain_id"})
	requestsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gwrelayer_requests_rejected_total",
			Help: "Total number of requests the loopback gateway refused to accept",
		})
	deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gwrelayer_deliveries_total",
			Help: "Total number of delivery attempts that reached a destination contract, by outcome",
		}, []string{"dest_chain_id", "outcome"})
	noRouteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gwrelayer_no_route_errors_total",
			Help: "Total number of delivery attempts for which no destination contract was registered",
		})
	acksSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gwrelayer_acks_sent_total",
			Help: "Total number of acknowledgments delivered back to source contracts",
		}, []string{"src_chain_id"})
	requestsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gwrelayer_requests_dropped_total",
			Help: "Total number of requests dropped without delivery",
		})
	pendingRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gwrelayer_pending_requests",
			Help: "Current number of accepted requests not yet delivered",
		})
)
