package stats

import (
	"sync"
	"time"

	"github.com/dannyzb/chainsync-loadtest/chaintypes"
)

// SendTimes is one logical request's per-peer fan-out record: a total
// send count, and the first-send instant per peer (insertion-preserved,
// never overwritten — each key's timestamp is the earliest send to that
// peer for this request).
type SendTimes struct {
	sends Count

	mu    sync.Mutex
	order []chaintypes.PeerID
	times map[chaintypes.PeerID]time.Time
}

// NewSendTimes returns an empty SendTimes ready to register sends.
func NewSendTimes() *SendTimes {
	return &SendTimes{times: make(map[chaintypes.PeerID]time.Time)}
}

// Register records a send to peer: increments the total send count, and
// if this is the first send to peer for this request, records now as
// its first-send time.
func (s *SendTimes) Register(peer chaintypes.PeerID) {
	s.sends.Inc()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.times[peer]; !ok {
		s.times[peer] = time.Now()
		s.order = append(s.order, peer)
	}
}

// Sends returns the total number of sends issued for this request, across
// all peers.
func (s *SendTimes) Sends() int64 {
	return s.sends.Int64()
}

// Peers returns every peer a send was registered for, in first-send
// order.
func (s *SendTimes) Peers() []chaintypes.PeerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chaintypes.PeerID, len(s.order))
	copy(out, s.order)
	return out
}

// Latency reports how long ago the first send to peer happened, if any
// send was ever registered for it.
func (s *SendTimes) Latency(peer chaintypes.PeerID) (time.Duration, bool) {
	s.mu.Lock()
	t, ok := s.times[peer]
	s.mu.Unlock()
	if !ok {
		return 0, false
	}
	return time.Since(t), true
}

// earliestSendLatency is the latency since the first send to any peer,
// used by PeerStatsMap to fill in RequestStats.TotalLatency.
func (s *SendTimes) earliestSendLatency() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var min time.Time
	found := false
	for _, t := range s.times {
		if !found || t.Before(min) {
			min = t
			found = true
		}
	}
	if !found {
		return 0, false
	}
	return time.Since(min), true
}
