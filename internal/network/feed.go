package network

import (
	"encoding/base64"

	"github.com/zeebo/blake3"

	"github.com/roach88/factsync/internal/fact"
	"github.com/roach88/factsync/internal/spec"
)

// feedDomainKey keys the BLAKE3 hash of feed identifiers: the ASCII domain
// name zero-padded to 32 bytes.
var feedDomainKey = [32]byte{
	'f', 'a', 'c', 't', 's', 'y', 'n', 'c', '.', 'n', 'e', 't', 'w', 'o', 'r', 'k',
	'.', 'f', 'e', 'e', 'd', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// FeedID returns the identifier of the feed serving s anchored at givens:
// base64url (unpadded) of a keyed BLAKE3 hash over the specification hash
// and the given references in order.
func FeedID(s spec.Specification, givens []fact.Reference) string {
	hasher, err := blake3.NewKeyed(feedDomainKey[:])
	if err != nil {
		panic("network: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.WriteString(s.Hash())
	for _, g := range givens {
		hasher.WriteString("\x00")
		hasher.WriteString(g.Type)
		hasher.WriteString("\x00")
		hasher.WriteString(g.Hash)
	}
	return base64.RawURLEncoding.EncodeToString(hasher.Sum(nil))
}

// feed is a registered feed definition.
type feed struct {
	specification spec.Specification
	givens        []fact.Reference
}
