// Package kind packs a small type hierarchy into a uint64.
//
// The lowest 8 bits hold the kind's own ID, every following byte holds the
// ID of one of its bases. A kind therefore carries at most seven bases and a
// process can mint at most 255 kinds. The runtime uses kinds to classify
// signals (pseudo, control, user) so that queues and the broker can reject
// internal signals with a single bit test.
package kind

import (
	"sync"
	"sync/atomic"
)

const (
	idBits   = 8
	maxDepth = 64 / idBits
	idMask   = (1 << idBits) - 1
)

// Kind encodes an ID and the IDs of its bases.
type Kind uint64

var (
	next  atomic.Uint64
	names sync.Map // id -> name
)

// Make mints a new kind deriving from bases. Bases of bases are folded in,
// duplicates are dropped. Make panics once the ID space is exhausted.
func Make(name string, bases ...Kind) Kind {
	id := next.Add(1)
	if id > idMask {
		panic("kind: id space exhausted")
	}
	names.Store(id, name)
	k := Kind(id)
	seen := map[uint64]struct{}{id: {}}
	depth := 1
	for _, base := range bases {
		for _, b := range base.ids() {
			if _, ok := seen[b]; ok {
				continue
			}
			if depth == maxDepth {
				panic("kind: too many bases for " + name)
			}
			seen[b] = struct{}{}
			k |= Kind(b << (idBits * depth))
			depth++
		}
	}
	return k
}

// ID returns the kind's own ID without its bases.
func (k Kind) ID() uint64 {
	return uint64(k) & idMask
}

func (k Kind) ids() []uint64 {
	ids := make([]uint64, 0, maxDepth)
	for i := 0; i < maxDepth; i++ {
		id := (uint64(k) >> (idBits * i)) & idMask
		if id == 0 {
			break
		}
		ids = append(ids, id)
	}
	return ids
}

// Bases returns the IDs of every base folded into k, nearest first.
func (k Kind) Bases() []uint64 {
	ids := k.ids()
	if len(ids) == 0 {
		return nil
	}
	return ids[1:]
}

// Is reports whether k is, or derives from, any of the given kinds.
func (k Kind) Is(bases ...Kind) bool {
	for _, base := range bases {
		want := base.ID()
		if want == 0 {
			continue
		}
		for _, id := range k.ids() {
			if id == want {
				return true
			}
		}
	}
	return false
}

// String returns the name given to Make.
func (k Kind) String() string {
	if name, ok := names.Load(k.ID()); ok {
		return name.(string)
	}
	return "unknown"
}

// Is is the function form of Kind.Is.
func Is(k Kind, bases ...Kind) bool {
	return k.Is(bases...)
}
