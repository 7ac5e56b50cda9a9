// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lsp",
		Name:      "jsonrpc_requests_total",
		Help:      "JSON-RPC requests by method and result code (0 for success).",
	}, []string{"method", "code"})

	paymentTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lsp",
		Name:      "order_payment_transitions_total",
		Help:      "Order payment state transitions by target state.",
	}, []string{"to"})

	channelsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lsp",
		Name:      "channels_opened_total",
		Help:      "Channels opened for paid orders.",
	})

	nodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lsp",
		Name:      "node_rpc_errors_total",
		Help:      "Failed calls to the Lightning node by operation.",
	}, []string{"operation"})
)

func ObserveRequest(method string, code int) {
	requestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

func ObservePaymentTransition(to string) {
	paymentTransitions.WithLabelValues(to).Inc()
}

func ObserveChannelOpened() {
	channelsOpened.Inc()
}

func ObserveNodeError(operation string) {
	nodeErrors.WithLabelValues(operation).Inc()
}
