package util

import (
	"crypto/rand"
	"encoding/binary"
	"hash/fnv"
	"strings"
	"time"
)

// ReplicaID derives the dragonboat replica id of a node from its name (e.g. "node-1").
// Surrounding whitespace is ignored, the name is hashed with FNV-1a. Dragonboat
// reserves the id 0, a name that hashes to 0 gets the id 1.
func ReplicaID(name string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(strings.TrimSpace(name)))
	if id := h.Sum64(); id != 0 {
		return id
	}
	return 1
}

// NewRegionID returns a random non zero id for the region of a new table
func NewRegionID() uint64 {
	var b [8]byte
	for {
		if _, err := rand.Read(b[:]); err != nil {
			// no entropy source, the clock is unique enough for one node
			return uint64(time.Now().UnixNano()) | 1
		}
		if id := binary.BigEndian.Uint64(b[:]); id != 0 {
			return id
		}
	}
}
