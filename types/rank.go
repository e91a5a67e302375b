package types

import "math"

// Rank is the hop distance to the root (§3). RankInfinite is the
// sentinel for "unattached": strictly greater than any reachable rank,
// as the spec requires.
type Rank uint32

// RankInfinite marks a sensor with no parent. math.MaxUint32 is never a
// reachable rank since a 2-byte tree can't have billions of hops.
const RankInfinite Rank = math.MaxUint32

// RootRank is the rank the root always reports (§8 invariant 2).
const RootRank Rank = 0
