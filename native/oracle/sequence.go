package oracle

import (
	"fmt"

	"github.com/holiman/uint256"

	nativecommon "pricevault/native/common"
)

// MaxHops bounds the number of chained feeds in a sequence.
const MaxHops = 3

// FeedID identifies a registered price feed.
type FeedID uint32

// Hop is one step of a feed sequence. Invert marks a quote→base traversal:
// the feed's rate is inverted before composing it into the running rate.
type Hop struct {
	Feed   FeedID
	Invert bool
}

// Sequence is an ordered list of at most MaxHops (feed, direction) pairs
// packed into a single 256-bit word so it can serve as compact mapping state.
// Layout: bits 0-7 hold the hop count, bits 8-10 the invert flags, and each
// feed identifier occupies 32 bits starting at bit 16.
type Sequence struct {
	packed uint256.Int
}

// NewSequence packs the hops. Sequences longer than MaxHops are rejected
// before any state is touched.
func NewSequence(hops ...Hop) (Sequence, error) {
	if len(hops) > MaxHops {
		return Sequence{}, fmt.Errorf("%w: %d hops exceeds limit of %d", nativecommon.ErrBadSequence, len(hops), MaxHops)
	}
	var packed uint256.Int
	packed.SetUint64(uint64(len(hops)))
	for i, hop := range hops {
		if hop.Invert {
			flag := new(uint256.Int).Lsh(uint256.NewInt(1), uint(8+i))
			packed.Or(&packed, flag)
		}
		feed := new(uint256.Int).Lsh(uint256.NewInt(uint64(hop.Feed)), uint(16+32*i))
		packed.Or(&packed, feed)
	}
	return Sequence{packed: packed}, nil
}

// MustSequence is a test and wiring helper that panics on a bad sequence.
func MustSequence(hops ...Hop) Sequence {
	seq, err := NewSequence(hops...)
	if err != nil {
		panic(err)
	}
	return seq
}

// Len returns the number of hops in the sequence.
func (s Sequence) Len() int {
	return int(s.packed.Uint64() & 0xff)
}

// Hops unpacks the sequence in registration order.
func (s Sequence) Hops() []Hop {
	count := s.Len()
	hops := make([]Hop, 0, count)
	for i := 0; i < count; i++ {
		flag := new(uint256.Int).Rsh(&s.packed, uint(8+i))
		feed := new(uint256.Int).Rsh(&s.packed, uint(16+32*i))
		hops = append(hops, Hop{
			Feed:   FeedID(feed.Uint64() & 0xffffffff),
			Invert: flag.Uint64()&1 == 1,
		})
	}
	return hops
}

// Packed exposes the raw 256-bit representation for persistence.
func (s Sequence) Packed() *uint256.Int {
	return new(uint256.Int).Set(&s.packed)
}

// SequenceFromPacked restores a sequence from its packed representation.
func SequenceFromPacked(packed *uint256.Int) (Sequence, error) {
	if packed == nil {
		return Sequence{}, fmt.Errorf("%w: nil packed value", nativecommon.ErrBadSequence)
	}
	seq := Sequence{packed: *new(uint256.Int).Set(packed)}
	if seq.Len() > MaxHops {
		return Sequence{}, fmt.Errorf("%w: packed hop count %d", nativecommon.ErrBadSequence, seq.Len())
	}
	return seq, nil
}
