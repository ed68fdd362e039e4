package metrics

import "github.com/prometheus/client_golang/prometheus"

// MessagingMetrics exposes counters/histograms for transport flows.
type MessagingMetrics struct {
	inboundTotal   *prometheus.CounterVec
	outboundTotal  *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewMessagingMetrics(reg prometheus.Registerer) *MessagingMetrics {
	m := &MessagingMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "messaging",
			Name:      "inbound_total",
			Help:      "Total inbound gateway messages by outcome",
		}, []string{"status"}),
		outboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "messaging",
			Name:      "outbound_total",
			Help:      "Total outbound gateway sends",
		}, []string{"status"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "messaging",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of gateway webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.outboundTotal, m.webhookLatency)
	return m
}

func (m *MessagingMetrics) ObserveInbound(status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(status).Inc()
}

func (m *MessagingMetrics) ObserveOutbound(status string) {
	if m == nil {
		return
	}
	m.outboundTotal.WithLabelValues(status).Inc()
}

func (m *MessagingMetrics) ObserveWebhookLatency(status string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(status).Observe(seconds)
}

// ConversationMetrics tracks run loop and turn outcomes.
type ConversationMetrics struct {
	runsTotal     *prometheus.CounterVec
	toolCalls     *prometheus.CounterVec
	runCycles     prometheus.Histogram
	turnLatency   *prometheus.HistogramVec
	stateEvicted  prometheus.Counter
	ordersCreated *prometheus.CounterVec
	jobsTotal     *prometheus.CounterVec
	queueLag      prometheus.Histogram
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "conversation",
			Name:      "runs_total",
			Help:      "Completion runs by terminal status",
		}, []string{"status"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "conversation",
			Name:      "tool_calls_total",
			Help:      "Tool invocations by tool and outcome",
		}, []string{"tool", "outcome"}),
		runCycles: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "conversation",
			Name:      "run_cycles",
			Help:      "requires_action cycles per run",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 10},
		}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "conversation",
			Name:      "turn_latency_seconds",
			Help:      "Inbound-to-reply latency by engine",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 90},
		}, []string{"engine"}),
		stateEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "conversation",
			Name:      "order_state_evicted_total",
			Help:      "Idle order slot states removed by the sweeper",
		}),
		ordersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "conversation",
			Name:      "order_submissions_total",
			Help:      "Order submission attempts by outcome",
		}, []string{"outcome"}),
		jobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "conversation",
			Name:      "jobs_total",
			Help:      "Queued inbound jobs by worker outcome",
		}, []string{"outcome"}),
		queueLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "conversation",
			Name:      "queue_lag_seconds",
			Help:      "Time between enqueue and worker pickup",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.runsTotal, m.toolCalls, m.runCycles, m.turnLatency, m.stateEvicted, m.ordersCreated, m.jobsTotal, m.queueLag)
	return m
}

func (m *ConversationMetrics) ObserveRun(status string, cycles int) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runCycles.Observe(float64(cycles))
}

func (m *ConversationMetrics) ObserveToolCall(tool, outcome string) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, outcome).Inc()
}

func (m *ConversationMetrics) ObserveTurn(engine string, seconds float64) {
	if m == nil {
		return
	}
	m.turnLatency.WithLabelValues(engine).Observe(seconds)
}

func (m *ConversationMetrics) AddEvicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.stateEvicted.Add(float64(n))
}

func (m *ConversationMetrics) ObserveOrderSubmission(outcome string) {
	if m == nil {
		return
	}
	m.ordersCreated.WithLabelValues(outcome).Inc()
}

// ObserveJob records a worker outcome. A negative lag means the enqueue time
// was unknown and only the outcome is counted.
func (m *ConversationMetrics) ObserveJob(outcome string, lagSeconds float64) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(outcome).Inc()
	if lagSeconds >= 0 {
		m.queueLag.Observe(lagSeconds)
	}
}
