package dbginfo

import (
	"go/types"

	"github.com/minio/highwayhash"
)

// internerKey is the 256-bit HighwayHash key used to canonicalize debug
// types into a stable string key, following the same content-hash
// pattern as inspector/graph/hash.go but applied to type identity
// instead of file content.
var internerKey = []byte("KPDG-DEBUG-TYPE-INTERNER-KEY-V01")

// Interner canonicalizes go/types.Type values so that structurally equal
// types compare as the same pointer. The parameter/object tree builder's
// 1-limit recursion guard relies on pointer identity over this
// canonicalized debug-type interner.
type Interner struct {
	byKey map[string]types.Type
}

// NewInterner returns an empty Interner.
func NewInterner() *Interner {
	return &Interner{byKey: make(map[string]types.Type)}
}

// Canonical returns the first-seen representative of t's structural
// identity. Subsequent calls with a structurally identical type return
// the exact same types.Type value, so callers can use == for the
// 1-limit ancestor check.
func (in *Interner) Canonical(t types.Type) types.Type {
	if t == nil {
		return nil
	}
	key := canonicalKey(t)
	if existing, ok := in.byKey[key]; ok {
		return existing
	}
	in.byKey[key] = t
	return t
}

// canonicalKey hashes t's go/types.Type.String() (which already
// normalizes package-qualified names) and returns the raw 64-bit digest
// bytes as the key. Collisions between structurally different types would only
// widen the 1-limit guard (stop expansion slightly earlier), never
// narrow it -- always safe to widen, never safe to narrow.
func canonicalKey(t types.Type) string {
	h, err := highwayhash.New64(internerKey)
	if err != nil {
		// highwayhash.New64 only fails for a malformed key, which is a
		// compile-time constant here; treat as an invariant violation.
		panic("dbginfo: invalid interner key: " + err.Error())
	}
	_, _ = h.Write([]byte(t.String()))
	sum := h.Sum(nil)
	return string(sum)
}
