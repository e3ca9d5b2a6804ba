package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ChatRequests       prometheus.Counter
	ProviderFallbacks  prometheus.Counter
	ActionsExecuted    prometheus.Counter
	BatchesFailed      prometheus.Counter
	StageEventsDropped prometheus.Counter
	RuntimeInvocations prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			ChatRequests: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "workbench",
				Name:      "agent_chat_requests_total",
				Help:      "Total chat requests accepted by the router",
			}),
			ProviderFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "workbench",
				Name:      "agent_provider_fallbacks_total",
				Help:      "Total chat requests answered by the deterministic fallback",
			}),
			ActionsExecuted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "workbench",
				Name:      "agent_actions_executed_total",
				Help:      "Total actions applied by the batch executor",
			}),
			BatchesFailed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "workbench",
				Name:      "agent_batches_failed_total",
				Help:      "Total batches rolled back on first failure",
			}),
			StageEventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "workbench",
				Name:      "agent_stage_events_dropped_total",
				Help:      "Total stage events dropped because the sink was full",
			}),
			RuntimeInvocations: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "workbench",
				Name:      "agent_runtime_invocations_total",
				Help:      "Total local runtime subprocess invocations",
			}),
		}
		prometheus.MustRegister(
			global.ChatRequests,
			global.ProviderFallbacks,
			global.ActionsExecuted,
			global.BatchesFailed,
			global.StageEventsDropped,
			global.RuntimeInvocations,
		)
	})
	return global
}
