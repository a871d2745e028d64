package oracle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	nativecommon "pricevault/native/common"
)

func TestSequencePackRoundTrip(t *testing.T) {
	cases := [][]Hop{
		{},
		{{Feed: 1, Invert: false}},
		{{Feed: 7, Invert: true}},
		{{Feed: 1, Invert: false}, {Feed: 2, Invert: true}},
		{{Feed: 0xffffffff, Invert: true}, {Feed: 0, Invert: false}, {Feed: 42, Invert: true}},
	}
	for _, hops := range cases {
		seq, err := NewSequence(hops...)
		require.NoError(t, err)
		require.Equal(t, len(hops), seq.Len())
		unpacked := seq.Hops()
		require.Len(t, unpacked, len(hops))
		for i := range hops {
			require.Equal(t, hops[i], unpacked[i], "hop %d order must be preserved", i)
		}
	}
}

func TestSequenceRejectsTooManyHops(t *testing.T) {
	_, err := NewSequence(Hop{Feed: 1}, Hop{Feed: 2}, Hop{Feed: 3}, Hop{Feed: 4})
	require.ErrorIs(t, err, nativecommon.ErrBadSequence)
}

func TestSequenceFromPacked(t *testing.T) {
	seq := MustSequence(Hop{Feed: 9, Invert: true}, Hop{Feed: 11})
	restored, err := SequenceFromPacked(seq.Packed())
	require.NoError(t, err)
	require.Equal(t, seq.Hops(), restored.Hops())

	if _, err := SequenceFromPacked(nil); !errors.Is(err, nativecommon.ErrBadSequence) {
		t.Fatalf("expected ErrBadSequence for nil packed value, got %v", err)
	}
}
