package chaintypes

// genesisLiterals holds the well-known genesis hash strings for the
// chains this loadtest recognizes. The strings themselves are the
// literal, external constants; GenesisHash content-addresses them into
// this module's Hash representation so the rest of the code never deals
// in bare strings.
var genesisLiterals = map[string]string{
	"mainnet": "EPnLgE7iEq9s7yTkos96M3cWymH5avBAPm3qx3NXqR8H",
	"testnet": "FWJ9kR6KFWoyMoNjpLXXGHeuiy7tEY6GmoFeCA5yuc6b",
	"betanet": "6hy7VoEJhPEUaJr1d5ePBhKdgeDWKCjLoUAn7XS9YPj",
}

// GenesisHash looks up the genesis hash for chainID, returning the zero
// hash for anything not in genesisLiterals.
func GenesisHash(chainID string) Hash {
	lit, ok := genesisLiterals[chainID]
	if !ok {
		return ZeroHash
	}
	return HashBytes([]byte(lit))
}

// GenesisID is the chain identity returned by a GetChainInfo query.
type GenesisID struct {
	ChainID string
	Hash    Hash
}
