package stats

import (
	"sync"
	"time"

	"github.com/anacrolix/log"

	"github.com/dannyzb/chainsync-loadtest/chaintypes"
)

// PeerStats accumulates one peer's request/response counts and latency
// across every request it has ever participated in.
type PeerStats struct {
	Requests     uint64
	Responses    uint64
	TotalLatency time.Duration
}

// AverageLatency returns TotalLatency/Responses, or zero if there have
// been no responses yet.
func (p PeerStats) AverageLatency() time.Duration {
	if p.Responses == 0 {
		return 0
	}
	return p.TotalLatency / time.Duration(p.Responses)
}

// RequestStats accumulates counts across every logical request, instead
// of per-peer.
type RequestStats struct {
	Requests     uint64
	TotalSends   uint64
	TotalLatency time.Duration
}

// PeerStatsMap keeps two independent locks: a requests lock (hot path,
// touched once per matched response) and a peers lock (touched once per
// fan-out peer per matched response). The two are never nested, and
// neither is ever held across a suspension point.
type PeerStatsMap struct {
	requestsMu sync.Mutex
	requests   RequestStats

	peersMu sync.Mutex
	peers   map[chaintypes.PeerID]*PeerStats

	logger  log.Logger
	metrics *Metrics
}

// NewPeerStatsMap returns an empty PeerStatsMap. metrics may be nil to
// disable Prometheus export.
func NewPeerStatsMap(logger log.Logger, metrics *Metrics) *PeerStatsMap {
	return &PeerStatsMap{
		peers:   make(map[chaintypes.PeerID]*PeerStats),
		logger:  logger,
		metrics: metrics,
	}
}

// AddResponseTime attributes latency to responder: the peer whose reply
// arrived first for the logical request described by st. It is called
// at most once per request, from the first successful Once.Set.
func (m *PeerStatsMap) AddResponseTime(st *SendTimes, responder chaintypes.PeerID) {
	m.requestsMu.Lock()
	m.requests.Requests++
	m.requests.TotalSends += uint64(st.Sends())
	if lat, ok := st.earliestSendLatency(); ok {
		m.requests.TotalLatency += lat
	}
	m.requestsMu.Unlock()

	// Lock released above before acquiring this one: the two domains are
	// never nested.
	m.peersMu.Lock()
	defer m.peersMu.Unlock()

	for _, p := range st.Peers() {
		m.peerLocked(p).Requests++
		if m.metrics != nil {
			m.metrics.ObserveRequest(p)
		}
	}
	responderStats := m.peerLocked(responder)
	if lat, ok := st.Latency(responder); ok {
		responderStats.Responses++
		responderStats.TotalLatency += lat
		if m.metrics != nil {
			m.metrics.ObserveLatency(responder, lat)
		}
	} else {
		// Suspicious: a response arrived attributed to a peer we never
		// recorded a send to for this request. Counted, never fatal.
		m.logger.WithDefaultLevel(log.Warning).Printf("response without request from %v", responder)
		responderStats.Responses++
	}
}

// peerLocked returns p's PeerStats, creating it if necessary. Caller
// must hold peersMu.
func (m *PeerStatsMap) peerLocked(p chaintypes.PeerID) *PeerStats {
	ps, ok := m.peers[p]
	if !ok {
		ps = &PeerStats{}
		m.peers[p] = ps
	}
	return ps
}

// Snapshot returns a copy of the per-peer stats map, safe to read without
// racing concurrent AddResponseTime calls.
func (m *PeerStatsMap) Snapshot() map[chaintypes.PeerID]PeerStats {
	m.peersMu.Lock()
	defer m.peersMu.Unlock()
	out := make(map[chaintypes.PeerID]PeerStats, len(m.peers))
	for p, ps := range m.peers {
		out[p] = *ps
	}
	return out
}

// RequestSnapshot returns a copy of the aggregate request stats.
func (m *PeerStatsMap) RequestSnapshot() RequestStats {
	m.requestsMu.Lock()
	defer m.requestsMu.Unlock()
	return m.requests
}
