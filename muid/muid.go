// Package muid generates monotonically increasing 64-bit identities for
// active objects and other runtime entities.
//
// Layout, most significant first:
//
//	[timestamp ms since Epoch][node][sequence]
//
// The sequence absorbs bursts within one millisecond. When it overflows the
// generator borrows the next millisecond, so IDs stay strictly increasing per
// generator even if the wall clock stalls or steps backwards.
package muid

import (
	"crypto/rand"
	"encoding/binary"
	"hash/fnv"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Epoch is the default origin of the timestamp field (2023-11-14T22:13:20Z).
const Epoch int64 = 1700000000000

// Config selects the field widths of a Generator. Zero values take defaults.
type Config struct {
	Node         uint64
	NodeBits     int
	SequenceBits int
	Epoch        int64
}

// MUID is a monotonically unique ID.
type MUID uint64

// String returns the base32 form of the ID.
func (m MUID) String() string {
	return strconv.FormatUint(uint64(m), 32)
}

// Generator hands out MUIDs. It is safe for concurrent use.
type Generator struct {
	node         uint64
	sequenceBits int
	nodeShift    int
	timeShift    int
	sequenceMask uint64
	epoch        int64
	// last packs the last timestamp and the sequence used with it.
	last atomic.Uint64
}

// NewGenerator returns a generator for config.
func NewGenerator(config Config) *Generator {
	if config.NodeBits <= 0 {
		config.NodeBits = 14
	}
	if config.SequenceBits <= 0 {
		config.SequenceBits = 10
	}
	if config.Epoch <= 0 {
		config.Epoch = Epoch
	}
	if config.Node == 0 {
		config.Node = hostNode()
	}
	return &Generator{
		node:         config.Node & ((1 << config.NodeBits) - 1),
		sequenceBits: config.SequenceBits,
		nodeShift:    config.SequenceBits,
		timeShift:    config.SequenceBits + config.NodeBits,
		sequenceMask: (1 << config.SequenceBits) - 1,
		epoch:        config.Epoch,
	}
}

// ID returns the next MUID.
func (g *Generator) ID() MUID {
	for {
		now := uint64(time.Now().UnixMilli() - g.epoch)
		previous := g.last.Load()
		lastTime := previous >> g.sequenceBits
		sequence := previous & g.sequenceMask
		switch {
		case now > lastTime:
			sequence = 0
		case sequence == g.sequenceMask:
			now = lastTime + 1
			sequence = 0
		default:
			now = lastTime
			sequence++
		}
		if g.last.CompareAndSwap(previous, now<<g.sequenceBits|sequence) {
			return MUID(now<<g.timeShift | g.node<<g.nodeShift | sequence)
		}
	}
}

func hostNode() uint64 {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		var b [8]byte
		_, _ = rand.Read(b[:])
		return binary.BigEndian.Uint64(b[:])
	}
	hash := fnv.New64a()
	hash.Write([]byte(hostname))
	return hash.Sum64()
}

var defaultGenerator = sync.OnceValue(func() *Generator {
	return NewGenerator(Config{})
})

// Make returns a MUID from the process-wide generator.
func Make() MUID {
	return defaultGenerator().ID()
}

// MakeString is Make().String().
func MakeString() string {
	return Make().String()
}
