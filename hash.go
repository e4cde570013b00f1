package tieredsession

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"maps"
	"slices"

	"golang.org/x/crypto/blake2b"
)

// DefaultHash is the identifier hash used when none is configured.
const DefaultHash = "sha256"

var hashes = map[string]func() hash.Hash{
	"sha256":     sha256.New,
	"sha384":     sha512.New384,
	"sha512":     sha512.New,
	"sha512/256": sha512.New512_256,
	"blake2b-256": func() hash.Hash {
		h, _ := blake2b.New256(nil)
		return h
	},
	"blake2b-512": func() hash.Hash {
		h, _ := blake2b.New512(nil)
		return h
	},
}

// Hashes returns the names accepted by WithHash, sorted.
func Hashes() []string {
	return slices.Sorted(maps.Keys(hashes))
}

// hasher turns a caller supplied session id into the fixed length hex token
// used as the record key.
type hasher struct {
	name string
	new  func() hash.Hash
}

func newHasher(name string) (hasher, error) {
	fn, ok := hashes[name]
	if !ok {
		return hasher{}, configErr("unknown hash %q", name)
	}
	return hasher{name: name, new: fn}, nil
}

func (h hasher) sum(raw string) string {
	d := h.new()
	d.Write([]byte(raw))
	return hex.EncodeToString(d.Sum(nil))
}
