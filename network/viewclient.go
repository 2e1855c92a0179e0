package network

import (
	"github.com/anacrolix/log"

	"github.com/dannyzb/chainsync-loadtest/chaintypes"
	"github.com/dannyzb/chainsync-loadtest/peermanager"
)

// ViewClient answers the view-client side of the external interface: it
// knows its own chain's genesis and current height, and nothing else.
// It stands in for the real chain client a production peer-manager would
// query.
type ViewClient struct {
	genesis chaintypes.GenesisID
	height  func() uint64
	logger  log.Logger
}

// NewViewClient returns a ViewClient that reports chainID's genesis and
// calls height() for the current height on every GetChainInfo query.
func NewViewClient(chainID string, height func() uint64, logger log.Logger) *ViewClient {
	return &ViewClient{
		genesis: chaintypes.GenesisID{ChainID: chainID, Hash: chaintypes.GenesisHash(chainID)},
		height:  height,
		logger:  logger,
	}
}

// Handle implements peermanager.ViewClientHandler: GetChainInfo gets a
// real answer; everything else is logged by name (matching the
// original's `info!("view_request: {}", name)`) and gets
// NoResponseMessage.
func (v *ViewClient) Handle(msg peermanager.ViewClientMessage) peermanager.ViewClientResponse {
	switch m := msg.(type) {
	case peermanager.GetChainInfo:
		return peermanager.ChainInfoResponse{
			GenesisID: v.genesis,
			Height:    v.height(),
		}
	default:
		v.logger.Printf("view_request: %s", m.Name())
		return peermanager.NoResponseMessage{}
	}
}
