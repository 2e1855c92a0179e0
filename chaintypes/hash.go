// Package chaintypes defines the opaque, content-addressable payload
// types the multiplexer in package network moves around: block and
// header hashes, chunk hashes, peer identities. None of these types
// carry wire encoding or validation logic — that lives with the real
// chain client this module stands in for.
package chaintypes

import (
	"encoding/hex"

	"github.com/multiformats/go-multihash"
)

// Hash is a content address: a sha2-256 multihash digest, copied whole into
// a fixed-width, comparable value so it can key a map (and therefore a
// concurrency.WeakMap) directly.
type Hash [34]byte // multihash.Sum(..., SHA2_256, -1) is 2 header bytes + 32 digest bytes

// ZeroHash is the hash returned for an unrecognized chain id.
var ZeroHash Hash

// HashBytes content-addresses b.
func HashBytes(b []byte) Hash {
	mh, err := multihash.Sum(b, multihash.SHA2_256, -1)
	if err != nil {
		// SHA2_256 over an in-memory buffer cannot fail.
		panic(err)
	}
	var h Hash
	copy(h[:], mh)
	return h
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

// PeerID identifies a connected peer. The real transport's identities
// (public keys, multiaddrs, ...) are opaque to this module; a comparable
// string is all SendTimes and PeerStatsMap need.
type PeerID string

func (p PeerID) String() string { return string(p) }
