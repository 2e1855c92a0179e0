// Command chainsync-loadtest drives Network against a FakeAdapter:
// a self-contained demo that exercises the full fetch_block path without
// a real peer-manager to connect to. Every simulated peer answers a
// BlockRequest by echoing the requested hash back a few milliseconds
// later, through the same Notify path a real peer-manager would use.
package main

import (
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/anacrolix/envpprof"
	"github.com/anacrolix/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dannyzb/chainsync-loadtest/chaintypes"
	"github.com/dannyzb/chainsync-loadtest/concurrency"
	"github.com/dannyzb/chainsync-loadtest/network"
	"github.com/dannyzb/chainsync-loadtest/peermanager"
	"github.com/dannyzb/chainsync-loadtest/stats"
)

type args struct {
	ChainID       string        `arg:"--chain-id" default:"testnet" help:"chain whose genesis ViewClient reports"`
	MinPeers      int           `arg:"--min-peers" default:"3" help:"connected peers before info() unblocks"`
	PartsPerChunk uint64        `arg:"--parts-per-chunk" default:"4" help:"part ordinals requested per chunk"`
	QPSLimit      int           `arg:"--qps" default:"50" help:"combined send rate across all in-flight requests"`
	NumPeers      int           `arg:"--num-peers" default:"5" help:"size of the simulated connected-peer set"`
	Requests      int           `arg:"--requests" default:"20" help:"number of blocks to fetch before exiting"`
	SummaryEvery  time.Duration `arg:"--summary-every" default:"2s" help:"how often to log a stats summary"`
}

func main() {
	defer envpprof.Stop()

	var a args
	arg.MustParse(&a)

	logger := log.Default.WithNames("chainsync-loadtest")
	root := concurrency.Background(logger)

	st := stats.New(logger, prometheus.DefaultRegisterer)

	// n is constructed after adapter, but the ack callback needs to call
	// back into n once a request arrives; the forward reference is
	// resolved by the time any Send actually happens.
	var n *network.Network
	adapter := peermanager.NewFakeAdapter(func(peer chaintypes.PeerID, req peermanager.NetworkRequest) peermanager.Ack {
		if blockReq, ok := req.(peermanager.BlockRequest); ok {
			go deliverBlock(n, peer, blockReq.Hash)
		}
		return peermanager.Ack{Kind: peermanager.NoResponse}
	})

	cfg := network.Config{
		ChainID:       a.ChainID,
		MinPeers:      a.MinPeers,
		PartsPerChunk: a.PartsPerChunk,
		QPSLimit:      a.QPSLimit,
	}
	n = network.New(root, cfg, adapter, st, logger)
	defer n.Close()

	// Simulate peer-manager announcing a connected-peer set immediately,
	// so Info() never blocks on MinPeers in this demo.
	peers := make([]peermanager.FullPeerInfo, a.NumPeers)
	for i := range peers {
		peers[i] = peermanager.FullPeerInfo{PeerID: chaintypes.PeerID(randPeerID(i))}
	}
	n.Notify(peermanager.NetworkInfoMessage{Info: &peermanager.NetworkInfo{
		ConnectedPeers:    peers,
		NumConnectedPeers: len(peers),
	}})

	var height uint64
	viewClient := network.NewViewClient(a.ChainID, func() uint64 { return atomic.LoadUint64(&height) }, logger)
	if info, ok := viewClient.Handle(peermanager.GetChainInfo{}).(peermanager.ChainInfoResponse); ok {
		logger.Printf("genesis for %s: %v", a.ChainID, info.GenesisID.Hash)
	}

	stop := make(chan struct{})
	go summaryLoop(st, logger, a.SummaryEvery, stop)
	defer close(stop)

	for i := 0; i < a.Requests; i++ {
		hash := chaintypes.HashBytes([]byte{byte(i), byte(i >> 8)})
		block, err := n.FetchBlock(root, hash)
		if err != nil {
			logger.Printf("fetch_block(%v) failed: %v", hash, err)
			continue
		}
		logger.Printf("fetched block %v (%d bytes)", block.Hash, len(block.Body))
		atomic.AddUint64(&height, 1)
	}

	logger.Printf("%s", st.Summary())
}

// deliverBlock simulates network + peer processing latency, then answers
// with the requested block's content addressed to itself — enough for
// fetch_block's Once to resolve.
func deliverBlock(n *network.Network, peer chaintypes.PeerID, hash chaintypes.Hash) {
	time.Sleep(time.Duration(10+rand.Intn(40)) * time.Millisecond)
	n.Notify(peermanager.BlockMessage{
		Block:  chaintypes.Block{Hash: hash, Body: []byte("block body for " + hash.String())},
		PeerID: peer,
	})
}

func randPeerID(i int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, 8)
	r := rand.New(rand.NewSource(int64(i) + 1))
	for j := range b {
		b[j] = charset[r.Intn(len(charset))]
	}
	return "peer-" + string(b)
}

func summaryLoop(st *stats.Stats, logger log.Logger, every time.Duration, stop <-chan struct{}) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			logger.Printf("%s", st.Summary())
		case <-stop:
			return
		}
	}
}
