package peermanager

import (
	"context"
	"sync"

	"github.com/dannyzb/chainsync-loadtest/chaintypes"
)

// AckFunc decides the ack a FakeAdapter returns for a request to peer.
// Tests use this to script scenarios like "P1 always RouteNotFound, P2
// always NoResponse".
type AckFunc func(peer chaintypes.PeerID, req NetworkRequest) Ack

// FakeAdapter is an in-memory Adapter double: it never touches the
// network, just records what was sent and replies per AckFunc. It is
// used by network's tests and by the cmd/chainsync-loadtest demo binary,
// which has no real peer-manager to connect to.
type FakeAdapter struct {
	ack AckFunc

	mu   sync.Mutex
	sent []NetworkRequest
}

// NewFakeAdapter returns a FakeAdapter that always acks NoResponse if
// ack is nil.
func NewFakeAdapter(ack AckFunc) *FakeAdapter {
	if ack == nil {
		ack = func(chaintypes.PeerID, NetworkRequest) Ack { return Ack{Kind: NoResponse} }
	}
	return &FakeAdapter{ack: ack}
}

func peerOf(req NetworkRequest) chaintypes.PeerID {
	switch r := req.(type) {
	case BlockHeadersRequest:
		return r.PeerID
	case BlockRequest:
		return r.PeerID
	case PartialEncodedChunkRequest:
		return r.Target
	default:
		return ""
	}
}

func (f *FakeAdapter) Send(ctx context.Context, req NetworkRequest) (Ack, error) {
	f.mu.Lock()
	f.sent = append(f.sent, req)
	f.mu.Unlock()
	select {
	case <-ctx.Done():
		return Ack{}, ctx.Err()
	default:
	}
	return f.ack(peerOf(req), req), nil
}

// Sent returns every request handed to Send so far, in order.
func (f *FakeAdapter) Sent() []NetworkRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]NetworkRequest, len(f.sent))
	copy(out, f.sent)
	return out
}

// SentCount reports len(Sent()) without the copy.
func (f *FakeAdapter) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
