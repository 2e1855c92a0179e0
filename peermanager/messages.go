// Package peermanager models the underlying peer-manager transport as an
// external collaborator: Network never constructs sockets, dials peers,
// or runs a DHT — it only ever talks to this package's Adapter interface
// (outbound) and receives this package's message envelopes (inbound).
// FakeAdapter is the in-memory double tests and the demo binary drive it
// with.
package peermanager

import (
	"github.com/RoaringBitmap/roaring"

	"github.com/dannyzb/chainsync-loadtest/chaintypes"
)

// FullPeerInfo is the subset of a connected peer's info Network needs:
// just enough to route a request to it.
type FullPeerInfo struct {
	PeerID chaintypes.PeerID
}

// NetworkInfo is the immutable snapshot Network.info() hands out. It's
// always reached through a pointer so concurrent readers see a
// consistent view; NetworkData swaps in a new *NetworkInfo wholesale
// rather than mutating one in place.
type NetworkInfo struct {
	ConnectedPeers    []FullPeerInfo
	NumConnectedPeers int
}

// NetworkRequest is the outbound request vocabulary. Implementations are
// BlockHeadersRequest, BlockRequest, and PartialEncodedChunkRequest.
type NetworkRequest interface {
	isNetworkRequest()
}

type BlockHeadersRequest struct {
	Hashes []chaintypes.Hash
	PeerID chaintypes.PeerID
}

type BlockRequest struct {
	Hash   chaintypes.Hash
	PeerID chaintypes.PeerID
}

type PartialEncodedChunkRequest struct {
	Target  chaintypes.PeerID
	Request chaintypes.PartialEncodedChunkRequestMsg
}

func (BlockHeadersRequest) isNetworkRequest()        {}
func (BlockRequest) isNetworkRequest()               {}
func (PartialEncodedChunkRequest) isNetworkRequest() {}

// NewPartialEncodedChunkRequest builds the request fetch_chunk sends:
// every part ordinal 0..partsPerChunk-1, no shard tracking.
func NewPartialEncodedChunkRequest(target chaintypes.PeerID, chunkHash chaintypes.ChunkHash, partsPerChunk uint64) PartialEncodedChunkRequest {
	return PartialEncodedChunkRequest{
		Target: target,
		Request: chaintypes.PartialEncodedChunkRequestMsg{
			ChunkHash:      chunkHash,
			PartOrds:       chaintypes.PartOrdsRange(partsPerChunk),
			TrackingShards: roaring.New(),
		},
	}
}

// AckKind is the synchronous acknowledgement an Adapter.Send returns.
type AckKind int

const (
	// NoResponse means the request was accepted/queued by the transport.
	NoResponse AckKind = iota
	// RouteNotFound means the transport has no path to the target peer.
	RouteNotFound
	// Other is any ack outside {NoResponse, RouteNotFound} — a protocol
	// error as far as keep_sending is concerned.
	Other
)

func (k AckKind) String() string {
	switch k {
	case NoResponse:
		return "NoResponse"
	case RouteNotFound:
		return "RouteNotFound"
	default:
		return "Other"
	}
}

// Ack is the full acknowledgement value; Detail carries a description
// for Other acks, for inclusion in the error keep_sending returns.
type Ack struct {
	Kind   AckKind
	Detail string
}

// ClientMessage is the inbound envelope Network.Notify dispatches on.
// Implementations are NetworkInfoMessage, BlockMessage,
// BlockHeadersMessage, and ChunkResponseMessage; any other kind of
// inbound message this interface could in principle carry is silently
// ignored.
type ClientMessage interface {
	isClientMessage()
}

type NetworkInfoMessage struct {
	Info *NetworkInfo
}

type BlockMessage struct {
	Block  chaintypes.Block
	PeerID chaintypes.PeerID
}

type BlockHeadersMessage struct {
	Headers []chaintypes.BlockHeader
	PeerID  chaintypes.PeerID
}

type ChunkResponseMessage struct {
	Response chaintypes.PartialEncodedChunkResponseMsg
	PeerID   chaintypes.PeerID
}

func (NetworkInfoMessage) isClientMessage()   {}
func (BlockMessage) isClientMessage()         {}
func (BlockHeadersMessage) isClientMessage()  {}
func (ChunkResponseMessage) isClientMessage() {}

// ViewClientMessage is the inbound envelope ViewClient answers.
type ViewClientMessage interface {
	isViewClientMessage()
	// Name identifies the message kind for observability, matching the
	// original's `info!("view_request: {}", name)` logging.
	Name() string
}

// GetChainInfo is the only view-client query this module answers with
// real data; every other kind gets NoResponse.
type GetChainInfo struct{}

func (GetChainInfo) isViewClientMessage() {}
func (GetChainInfo) Name() string         { return "GetChainInfo" }

// OtherViewClientMessage stands in for the rest of the real system's
// view-client query vocabulary (TxStatus, ReceiptOutcomeRequest,
// StateRequestHeader, ...), none of which this module has payloads for.
type OtherViewClientMessage struct {
	Kind string
}

func (OtherViewClientMessage) isViewClientMessage() {}
func (m OtherViewClientMessage) Name() string        { return m.Kind }

// ViewClientResponse is the reply to a ViewClientMessage.
type ViewClientResponse interface {
	isViewClientResponse()
}

type ChainInfoResponse struct {
	GenesisID     chaintypes.GenesisID
	Height        uint64
	TrackedShards []uint64
	Archival      bool
}

type NoResponseMessage struct{}

func (ChainInfoResponse) isViewClientResponse() {}
func (NoResponseMessage) isViewClientResponse()  {}
