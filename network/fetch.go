package network

import (
	"github.com/dannyzb/chainsync-loadtest/chaintypes"
	"github.com/dannyzb/chainsync-loadtest/concurrency"
	"github.com/dannyzb/chainsync-loadtest/peermanager"
	"github.com/dannyzb/chainsync-loadtest/stats"
)

// FetchBlockHeaders requests the header batch whose lowest member's
// parent is prevHash, coalescing with any other caller already waiting
// on the same prevHash.
func (n *Network) FetchBlockHeaders(ctx *concurrency.Ctx, prevHash chaintypes.Hash) ([]chaintypes.BlockHeader, error) {
	n.stats.RecordPhaseStart(stats.PhaseHeader)
	defer n.stats.RecordPhaseDone(stats.PhaseHeader)

	handle := n.headers.GetOrInsert(prevHash, func() *request[[]chaintypes.BlockHeader] {
		r := newRequest[[]chaintypes.BlockHeader]()
		go r.supervise(n.rootCtx, func(ctx *concurrency.Ctx) error {
			return n.keepSending(ctx, r.sendTimes, func(peer peermanager.FullPeerInfo) peermanager.NetworkRequest {
				return peermanager.BlockHeadersRequest{Hashes: []chaintypes.Hash{prevHash}, PeerID: peer.PeerID}
			})
		})
		return r
	})
	defer handle.Release()
	return handle.Value.once.Wait(ctx)
}

// FetchBlock requests the block with the given hash.
func (n *Network) FetchBlock(ctx *concurrency.Ctx, hash chaintypes.Hash) (chaintypes.Block, error) {
	n.stats.RecordPhaseStart(stats.PhaseBlock)
	defer n.stats.RecordPhaseDone(stats.PhaseBlock)

	handle := n.blocks.GetOrInsert(hash, func() *request[chaintypes.Block] {
		r := newRequest[chaintypes.Block]()
		go r.supervise(n.rootCtx, func(ctx *concurrency.Ctx) error {
			return n.keepSending(ctx, r.sendTimes, func(peer peermanager.FullPeerInfo) peermanager.NetworkRequest {
				return peermanager.BlockRequest{Hash: hash, PeerID: peer.PeerID}
			})
		})
		return r
	})
	defer handle.Release()
	return handle.Value.once.Wait(ctx)
}

// FetchChunk requests every part of the chunk named by header. Keying is
// on header.ChunkHash alone: the shard id is neither part of the
// coalescing key nor included in the request sent to peers.
func (n *Network) FetchChunk(ctx *concurrency.Ctx, header chaintypes.ShardChunkHeader) (chaintypes.PartialEncodedChunkResponseMsg, error) {
	n.stats.RecordPhaseStart(stats.PhaseChunk)
	defer n.stats.RecordPhaseDone(stats.PhaseChunk)

	handle := n.chunks.GetOrInsert(header.ChunkHash, func() *request[chaintypes.PartialEncodedChunkResponseMsg] {
		r := newRequest[chaintypes.PartialEncodedChunkResponseMsg]()
		go r.supervise(n.rootCtx, func(ctx *concurrency.Ctx) error {
			return n.keepSending(ctx, r.sendTimes, func(peer peermanager.FullPeerInfo) peermanager.NetworkRequest {
				return peermanager.NewPartialEncodedChunkRequest(peer.PeerID, header.ChunkHash, n.config.PartsPerChunk)
			})
		})
		return r
	})
	defer handle.Release()
	return handle.Value.once.Wait(ctx)
}
