package stats

import (
	"fmt"

	"github.com/anacrolix/log"
	"github.com/prometheus/client_golang/prometheus"
)

// Stats is the full set of atomic counters and per-peer latency
// aggregation a Network reports through: messages sent/failed/received,
// and start/done counts for each of the three request phases.
type Stats struct {
	MsgsSent         Count
	MsgsSendFailures Count
	MsgsRecv         Count

	HeaderStart Count
	HeaderDone  Count
	BlockStart  Count
	BlockDone   Count
	ChunkStart  Count
	ChunkDone   Count

	Peers *PeerStatsMap

	metrics *Metrics
}

// New returns an empty Stats. reg is the Prometheus registerer metrics
// are exported to; pass nil to use a private registry (e.g. in tests).
func New(logger log.Logger, reg prometheus.Registerer) *Stats {
	m := NewMetrics(reg)
	return &Stats{
		Peers:   NewPeerStatsMap(logger, m),
		metrics: m,
	}
}

func (s *Stats) RecordMsgSent() {
	s.MsgsSent.Inc()
	s.metrics.IncMsgsSent()
}

func (s *Stats) RecordMsgSendFailure() {
	s.MsgsSendFailures.Inc()
	s.metrics.IncMsgsSendFailures()
}

func (s *Stats) RecordMsgRecv() {
	s.MsgsRecv.Inc()
	s.metrics.IncMsgsRecv()
}

// Phase names used both for the Count pairs below and as the Prometheus
// "phase" label.
const (
	PhaseHeader = "header"
	PhaseBlock  = "block"
	PhaseChunk  = "chunk"
)

func (s *Stats) RecordPhaseStart(phase string) {
	s.metrics.IncPhaseStart(phase)
	switch phase {
	case PhaseHeader:
		s.HeaderStart.Inc()
	case PhaseBlock:
		s.BlockStart.Inc()
	case PhaseChunk:
		s.ChunkStart.Inc()
	}
}

func (s *Stats) RecordPhaseDone(phase string) {
	s.metrics.IncPhaseDone(phase)
	switch phase {
	case PhaseHeader:
		s.HeaderDone.Inc()
	case PhaseBlock:
		s.BlockDone.Inc()
	case PhaseChunk:
		s.ChunkDone.Inc()
	}
}

// Summary renders a single human-readable line suitable for periodic
// logging by the demo binary.
func (s *Stats) Summary() string {
	rs := s.Peers.RequestSnapshot()
	return fmt.Sprintf(
		"sent=%s failures=%s recv=%s headers=%s/%s blocks=%s/%s chunks=%s/%s requests=%d avg_sends=%.1f",
		&s.MsgsSent, &s.MsgsSendFailures, &s.MsgsRecv,
		&s.HeaderStart, &s.HeaderDone,
		&s.BlockStart, &s.BlockDone,
		&s.ChunkStart, &s.ChunkDone,
		rs.Requests, avgSends(rs),
	)
}

func avgSends(rs RequestStats) float64 {
	if rs.Requests == 0 {
		return 0
	}
	return float64(rs.TotalSends) / float64(rs.Requests)
}
