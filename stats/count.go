// Package stats holds the monotonically-increasing counters and
// per-peer latency aggregation the multiplexer reports through: message
// counts, per-phase start/done counts, and the two-lock
// request/peer accounting PeerStatsMap does on every matched response.
package stats

import (
	"encoding/json"
	"sync/atomic"

	"github.com/dustin/go-humanize"
)

// Count is a relaxed-ordering monotonic counter, adapted from the
// teacher codebase's generic Count type (there used for torrent byte/
// piece counters). Every counter field on Stats, and SendTimes' total
// send count, is one of these; RequestStats and PeerStats use plain
// integers guarded by PeerStatsMap's locks.
type Count struct {
	n int64
}

func (c *Count) Add(n int64) {
	atomic.AddInt64(&c.n, n)
}

func (c *Count) Inc() {
	c.Add(1)
}

func (c *Count) Int64() int64 {
	return atomic.LoadInt64(&c.n)
}

// String renders the counter with thousands separators, for the
// human-readable summary line Stats.Summary produces.
func (c *Count) String() string {
	return humanize.Comma(c.Int64())
}

func (c *Count) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Int64())
}
