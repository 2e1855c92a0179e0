package chaintypes

import "github.com/RoaringBitmap/roaring"

// ChunkHash addresses a shard chunk, independent of which block it
// belongs to.
type ChunkHash = Hash

// ShardChunkHeader is the handle fetch_chunk is called with; only the
// chunk hash is used for keying, but the shard id travels with it since
// a real caller would need it to route the response.
type ShardChunkHeader struct {
	ShardID   uint64
	ChunkHash ChunkHash
}

// PartialEncodedChunkRequestMsg is the outbound request for a set of
// erasure-coded chunk parts. PartOrds and TrackingShards are roaring
// bitmaps rather than slices: compact for the common case of a
// contiguous or near-contiguous ordinal range.
type PartialEncodedChunkRequestMsg struct {
	ChunkHash      ChunkHash
	PartOrds       *roaring.Bitmap
	TrackingShards *roaring.Bitmap
}

// PartialEncodedChunkResponseMsg is the inbound reply.
type PartialEncodedChunkResponseMsg struct {
	ChunkHash ChunkHash
	Parts     []ChunkPart
}

// ChunkPart is one erasure-coded part of a chunk.
type ChunkPart struct {
	Ord  uint64
	Data []byte
}

// PartOrdsRange builds the roaring bitmap {0, 1, ..., n-1}, the value
// fetch_chunk sends as PartOrds: every block-producer seat's part.
func PartOrdsRange(n uint64) *roaring.Bitmap {
	b := roaring.New()
	for i := uint64(0); i < n; i++ {
		b.Add(uint32(i))
	}
	return b
}
