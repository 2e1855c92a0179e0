// Package network is a multiplexer: a single
// Network fans out block/header/chunk requests across peer-manager's
// connections, coalesces concurrent callers asking for the same key onto
// one shared in-flight request, and demultiplexes inbound replies back
// onto whichever request they answer.
package network

import (
	"bytes"
	"context"
	"math/rand"
	"sync"

	"github.com/anacrolix/chansync"
	"github.com/anacrolix/log"
	"github.com/anacrolix/multiless"
	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"

	"github.com/dannyzb/chainsync-loadtest/chaintypes"
	"github.com/dannyzb/chainsync-loadtest/concurrency"
	"github.com/dannyzb/chainsync-loadtest/peermanager"
	"github.com/dannyzb/chainsync-loadtest/stats"
)

// Network is the one long-lived object a demo binary constructs: it owns
// the three coalescing registries, the shared rate limiter, and the
// latest NetworkInfo snapshot peer-manager keeps it updated with.
type Network struct {
	config  Config
	adapter peermanager.Adapter
	stats   *stats.Stats
	logger  log.Logger
	rootCtx *concurrency.Ctx
	cancel  context.CancelFunc

	limiter *concurrency.RateLimiter
	closed  chansync.SetOnce

	headers *concurrency.WeakMap[chaintypes.Hash, *request[[]chaintypes.BlockHeader]]
	blocks  *concurrency.WeakMap[chaintypes.Hash, *request[chaintypes.Block]]
	chunks  *concurrency.WeakMap[chaintypes.ChunkHash, *request[chaintypes.PartialEncodedChunkResponseMsg]]

	data networkData
}

// networkData is the mutable state Info() and Notify() share: the
// latest peer-manager snapshot, and the condition variable callers
// blocked on MinPeers connected peers wait on. ready is broadcast
// whenever a new snapshot satisfies MinPeers; every waiter wakes,
// reacquires mu, and rechecks the condition against the snapshot
// notifyInfo already installed, so all of them observe the same
// satisfying snapshot regardless of wake order.
type networkData struct {
	mu    sync.Mutex
	info  *peermanager.NetworkInfo
	ready concurrency.Event
}

// New constructs a Network. rootCtx bounds the lifetime of every
// keep_sending loop this Network ever starts: cancelling it (or calling
// Close) stops every in-flight request's keep_sending loop. Callers
// blocked in fetch_X keep waiting until their own ctx ends.
func New(rootCtx *concurrency.Ctx, cfg Config, adapter peermanager.Adapter, st *stats.Stats, logger log.Logger) *Network {
	ctx, cancel := rootCtx.WithCancel()
	return &Network{
		config:  cfg,
		adapter: adapter,
		stats:   st,
		logger:  logger,
		rootCtx: ctx,
		cancel:  cancel,
		limiter: concurrency.NewRateLimiter(cfg.QPSLimit),
		headers: concurrency.NewWeakMap[chaintypes.Hash, *request[[]chaintypes.BlockHeader]](logger),
		blocks:  concurrency.NewWeakMap[chaintypes.Hash, *request[chaintypes.Block]](logger),
		chunks:  concurrency.NewWeakMap[chaintypes.ChunkHash, *request[chaintypes.PartialEncodedChunkResponseMsg]](logger),
		data: networkData{
			info: &peermanager.NetworkInfo{},
		},
	}
}

// Close cancels rootCtx, tearing down every keep_sending loop this
// Network ever started. Safe to call more than once; only the first call
// has any effect.
func (n *Network) Close() {
	if !n.closed.Set() {
		return
	}
	n.cancel()
}

// DebugDump renders the current NetworkInfo snapshot for troubleshooting.
// Not on any hot path; only called from operator tooling.
func (n *Network) DebugDump() string {
	n.data.mu.Lock()
	defer n.data.mu.Unlock()
	return spew.Sdump(n.data.info)
}

// Info returns the current NetworkInfo once at least config.MinPeers are
// connected, blocking until then or until ctx cancels.
func (n *Network) Info(ctx *concurrency.Ctx) (*peermanager.NetworkInfo, error) {
	n.data.mu.Lock()
	for n.data.info.NumConnectedPeers < n.config.MinPeers {
		if err := n.data.ready.WaitCtx(ctx, &n.data.mu); err != nil {
			n.data.mu.Unlock()
			return nil, err
		}
	}
	info := n.data.info
	n.data.mu.Unlock()
	return info, nil
}

// Notify delivers one inbound ClientMessage: a fresh NetworkInfo
// snapshot, or a reply to one of the three fetch_X registries. Any other
// kind of ClientMessage is silently ignored.
func (n *Network) Notify(msg peermanager.ClientMessage) {
	n.stats.RecordMsgRecv()
	switch m := msg.(type) {
	case peermanager.NetworkInfoMessage:
		n.notifyInfo(m)
	case peermanager.BlockMessage:
		resolve(n.blocks, m.Block.Hash, m.Block, m.PeerID, n.stats)
	case peermanager.BlockHeadersMessage:
		n.notifyHeaders(m)
	case peermanager.ChunkResponseMessage:
		resolve(n.chunks, m.Response.ChunkHash, m.Response, m.PeerID, n.stats)
	}
}

func (n *Network) notifyInfo(m peermanager.NetworkInfoMessage) {
	n.data.mu.Lock()
	n.data.info = m.Info
	satisfied := m.Info.NumConnectedPeers >= n.config.MinPeers
	n.data.mu.Unlock()
	if !satisfied {
		n.logger.WithDefaultLevel(log.Debug).Printf("network info updated: %d/%d peers, still below min_peers", m.Info.NumConnectedPeers, n.config.MinPeers)
		return
	}
	n.data.ready.Broadcast()
}

// notifyHeaders resolves the request keyed by the batch's min-height
// header's PrevHash: fetch_block_headers keys its WeakMap entry on the
// parent of the header it wants, so a batch answers whichever fetch is
// waiting on that parent.
func (n *Network) notifyHeaders(m peermanager.BlockHeadersMessage) {
	if len(m.Headers) == 0 {
		return
	}
	best := m.Headers[0]
	for _, h := range m.Headers[1:] {
		if headerLess(h, best) {
			best = h
		}
	}
	resolve(n.headers, best.PrevHash, m.Headers, m.PeerID, n.stats)
}

// headerLess orders by height first, breaking ties by hash so the
// choice is deterministic across peers that both answer at the same
// height.
func headerLess(a, b chaintypes.BlockHeader) bool {
	if ml := multiless.New().Uint64(a.Height, b.Height); ml.Less() {
		return true
	} else if a.Height != b.Height {
		return false
	}
	return bytes.Compare(a.Hash[:], b.Hash[:]) < 0
}

// resolve delivers val to the live request for key, if any, and
// attributes response latency to responder. A miss (no caller is
// currently waiting on key) is not an error: the reply simply has
// nowhere to go.
func resolve[K comparable, T any](m *concurrency.WeakMap[K, *request[T]], key K, val T, responder chaintypes.PeerID, st *stats.Stats) {
	h, ok := m.Get(key)
	if !ok {
		return
	}
	defer h.Release()
	if err := h.Value.once.Set(val); err == nil {
		st.Peers.AddResponseTime(h.Value.sendTimes, responder)
	}
}

// keepSending is the retransmission loop every request's supervisor
// spawns as its sole weak child: round-robin a random permutation of
// connected peers, rate-limited, resending newReq to whichever peer is
// next whenever the previous send got NoResponse and RequestTimeout has
// elapsed without an answer. It returns on cancellation, on the
// transport's own Send failure (propagated per spec.md §7's
// TransportSendFailure, not retried — a RouteNotFound ack is the
// transport's way of saying "try someone else"; a Send error means the
// transport itself is broken), or on an unexpected ack. Resolving the
// caller's Once is what actually ends the need for it in the ordinary
// case (see request.supervise).
func (n *Network) keepSending(ctx *concurrency.Ctx, sendTimes *stats.SendTimes, newReq func(peer peermanager.FullPeerInfo) peermanager.NetworkRequest) error {
	ctx = ctx.WithLabel("keep_sending")
	defer ctx.End()
	for {
		info, err := n.Info(ctx)
		if err != nil {
			return err
		}
		peers := info.ConnectedPeers
		order := rand.Perm(len(peers))
		for _, idx := range order {
			if err := n.limiter.Allow(ctx); err != nil {
				return err
			}
			peer := peers[idx]
			sendTimes.Register(peer.PeerID)
			ack, err := n.adapter.Send(ctx.Context(), newReq(peer))
			if err != nil {
				if ctx.Err() != nil {
					return concurrency.ErrCancelled
				}
				n.stats.RecordMsgSendFailure()
				return errors.Wrapf(err, "transport send to %v", peer.PeerID)
			}
			switch ack.Kind {
			case peermanager.NoResponse:
				n.stats.RecordMsgSent()
				if err := ctx.Wait(RequestTimeout); err != nil {
					return err
				}
			case peermanager.RouteNotFound:
				n.stats.RecordMsgSendFailure()
			default:
				return errors.Errorf("unexpected ack from %v: %s (%s)", peer.PeerID, ack.Kind, ack.Detail)
			}
		}
		if len(peers) == 0 {
			if err := ctx.Wait(RequestTimeout); err != nil {
				return err
			}
		}
	}
}
