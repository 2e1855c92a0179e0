package peermanager

import "context"

// Adapter is the abstract "send request, await response or ack"
// interface Network drives. A real implementation would own sockets,
// peer discovery, and routing; Network only ever calls Send.
type Adapter interface {
	Send(ctx context.Context, req NetworkRequest) (Ack, error)
}

// ViewClientHandler answers the view-client side of the external
// interface: chain-info queries and the catch-all NoResponse for
// everything else.
type ViewClientHandler interface {
	Handle(msg ViewClientMessage) ViewClientResponse
}
