package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PointersRegistered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pointerbridge_registry_pointers_registered_total",
		Help: "Number of pointer links created",
	})
	RegistrationsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pointerbridge_registry_registrations_rejected_total",
		Help: "Number of rejected pointer registrations by reason",
	}, []string{"reason"})

	PointerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pointerbridge_pointer_calls_total",
		Help: "Number of pointer contract calls by method and result",
	}, []string{"method", "result"})

	SyntheticLogsFinalized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pointerbridge_logindex_synthetic_logs_total",
		Help: "Number of synthetic logs published with finalized blocks",
	})
	LogIndexHead = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pointerbridge_logindex_head",
		Help: "Highest finalized block of the synthetic log index",
	})
	LogIndexCachedBlocks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pointerbridge_logindex_cached_blocks",
		Help: "Number of finalized blocks held in memory by the synthetic log index",
	})

	GatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pointerbridge_gateway_requests_total",
		Help: "Number of json-rpc calls by namespace and method",
	}, []string{"namespace", "method"})
	GatewayErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pointerbridge_gateway_errors_total",
		Help: "Number of json-rpc calls that returned an error, by error code",
	}, []string{"code"})
	GatewayHiddenSyntheticLogs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pointerbridge_gateway_hidden_synthetic_logs_total",
		Help: "Number of synthetic logs left out of standard namespace responses",
	}, []string{"method"})
	GatewayCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pointerbridge_gateway_cache_total",
		Help: "Gateway response cache lookups by result",
	}, []string{"result"})
)
