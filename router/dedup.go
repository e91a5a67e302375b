package router

import "github.com/tii-ssrc/sensortree/types"

// dedupEntry mirrors original_source's `struct history_entry` (a
// source address plus its last-seen sequence number), adapted from a
// hand-rolled intrusive list + memb pool into an insertion-ordered
// Go slice, per the §9 design note ("sequence-number LRU ... → a
// bounded insertion-ordered cache with pop-oldest-on-full").
type dedupEntry struct {
	source  types.NodeAddress
	lastSeq uint8
}

// DedupCache is the bounded LRU of (source, last_seqno) pairs from
// spec §3/§4.8, used to make reliable-unicast delivery idempotent when
// the underlying transport's retransmission causes the receive
// callback to fire more than once for the same frame.
type DedupCache struct {
	capacity int
	entries  []dedupEntry // index 0 = most recently pushed, tail = oldest
}

func NewDedupCache(capacity int) *DedupCache {
	return &DedupCache{capacity: capacity}
}

// Accept implements the four-step algorithm of spec §4.8: returns
// false if the frame is a duplicate, in which case the caller must
// drop it and return without forwarding.
func (c *DedupCache) Accept(source types.NodeAddress, seq uint8) bool {
	for i := range c.entries {
		if c.entries[i].source.Equal(source) {
			if c.entries[i].lastSeq == seq {
				return false // duplicate: drop
			}
			c.entries[i].lastSeq = seq
			return true
		}
	}
	// Not found: push a new entry, evicting the oldest (tail) if full.
	if len(c.entries) >= c.capacity {
		c.entries = c.entries[:len(c.entries)-1]
	}
	c.entries = append([]dedupEntry{{source: source, lastSeq: seq}}, c.entries...)
	return true
}

// Len reports the current number of tracked sources, for the §8
// invariant "dup-cache holds <= NUM_HISTORY_ENTRIES entries".
func (c *DedupCache) Len() int {
	return len(c.entries)
}
