package stats

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dannyzb/chainsync-loadtest/chaintypes"
)

// Metrics mirrors Stats' plain atomic counters into Prometheus, and adds
// the one observation plain counters can't express: a latency
// distribution per peer. A load-test harness needs this to actually be
// watched while it runs.
type Metrics struct {
	msgsSent          prometheus.Counter
	msgsSendFailures  prometheus.Counter
	msgsRecv          prometheus.Counter
	phaseStart        *prometheus.CounterVec
	phaseDone         *prometheus.CounterVec
	peerRequests      *prometheus.CounterVec
	responseLatency   *prometheus.HistogramVec
}

// NewMetrics registers the chainsync_loadtest_* metric family on reg. A
// nil reg is valid and yields a Metrics backed by its own private
// registry (used by tests that don't want to pollute
// prometheus.DefaultRegisterer).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto(reg)
	m := &Metrics{
		msgsSent: f.NewCounter(prometheus.CounterOpts{
			Name: "chainsync_loadtest_msgs_sent_total",
			Help: "Requests successfully handed to the transport (ack = NoResponse).",
		}),
		msgsSendFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "chainsync_loadtest_msgs_send_failures_total",
			Help: "Requests the transport rejected with RouteNotFound or failed to send.",
		}),
		msgsRecv: f.NewCounter(prometheus.CounterOpts{
			Name: "chainsync_loadtest_msgs_recv_total",
			Help: "Inbound messages delivered through notify().",
		}),
		phaseStart: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chainsync_loadtest_phase_start_total",
			Help: "fetch_X calls started, by phase (header|block|chunk).",
		}, []string{"phase"}),
		phaseDone: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chainsync_loadtest_phase_done_total",
			Help: "fetch_X calls resolved, by phase (header|block|chunk).",
		}, []string{"phase"}),
		peerRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "chainsync_loadtest_peer_requests_total",
			Help: "Fan-out sends attributed to a peer across all requests.",
		}, []string{"peer"}),
		responseLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chainsync_loadtest_response_latency_seconds",
			Help:    "Time from first send to a peer to that peer's matched response.",
			Buckets: prometheus.DefBuckets,
		}, []string{"peer"}),
	}
	return m
}

func (m *Metrics) IncMsgsSent()         { m.msgsSent.Inc() }
func (m *Metrics) IncMsgsSendFailures() { m.msgsSendFailures.Inc() }
func (m *Metrics) IncMsgsRecv()         { m.msgsRecv.Inc() }

func (m *Metrics) IncPhaseStart(phase string) { m.phaseStart.WithLabelValues(phase).Inc() }
func (m *Metrics) IncPhaseDone(phase string)  { m.phaseDone.WithLabelValues(phase).Inc() }

func (m *Metrics) ObserveRequest(peer chaintypes.PeerID) {
	m.peerRequests.WithLabelValues(peer.String()).Inc()
}

func (m *Metrics) ObserveLatency(peer chaintypes.PeerID, d time.Duration) {
	m.responseLatency.WithLabelValues(peer.String()).Observe(d.Seconds())
}

// promauto-style factory, hand rolled instead of importing
// prometheus/client_golang/prometheus/promauto so NewMetrics can target
// an arbitrary registerer without relying on promauto's global default.
type factory struct{ reg prometheus.Registerer }

func promauto(reg prometheus.Registerer) factory { return factory{reg} }

func (f factory) NewCounter(opts prometheus.CounterOpts) prometheus.Counter {
	c := prometheus.NewCounter(opts)
	f.reg.MustRegister(c)
	return c
}

func (f factory) NewCounterVec(opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(opts, labels)
	f.reg.MustRegister(c)
	return c
}

func (f factory) NewHistogramVec(opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(opts, labels)
	f.reg.MustRegister(h)
	return h
}
