package oracle

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	nativecommon "pricevault/native/common"
)

func newTestFeed(t *testing.T, agg *Aggregator, id FeedID, decimals uint8, answer int64) *ManualSource {
	t.Helper()
	source := NewManualSource(decimals)
	source.SetAnswer(big.NewInt(answer), time.Now())
	require.NoError(t, agg.AddFeed(id, "BASE", "QUOTE", source))
	return source
}

func TestResolveAppliesDecimalCorrection(t *testing.T) {
	agg := NewAggregator()
	// decimals=6 means a correction of 1e12; a raw answer of 2_000_000
	// resolves to 2.0 in 18-decimal fixed point.
	newTestFeed(t, agg, 1, 6, 2_000_000)

	rate, err := agg.Resolve(MustSequence(Hop{Feed: 1}))
	require.NoError(t, err)

	expected := new(big.Int).Mul(big.NewInt(2), oneE18)
	require.Zero(t, rate.Cmp(expected), "got %s want %s", rate, expected)
}

func TestResolveChainsTwoFeeds(t *testing.T) {
	agg := NewAggregator()
	// hop1 rate 1.5, hop2 rate 2.0, both base→quote: composed rate 3.0.
	source1 := NewManualSource(18)
	source1.SetAnswer(new(big.Int).Quo(new(big.Int).Mul(big.NewInt(3), oneE18), big.NewInt(2)), time.Now())
	require.NoError(t, agg.AddFeed(1, "A", "B", source1))
	source2 := NewManualSource(18)
	source2.SetAnswer(new(big.Int).Mul(big.NewInt(2), oneE18), time.Now())
	require.NoError(t, agg.AddFeed(2, "B", "C", source2))

	rate, err := agg.Resolve(MustSequence(Hop{Feed: 1}, Hop{Feed: 2}))
	require.NoError(t, err)

	expected := new(big.Int).Mul(big.NewInt(3), oneE18)
	require.Zero(t, rate.Cmp(expected), "got %s want %s", rate, expected)
}

func TestResolveInverseHopYieldsIdentity(t *testing.T) {
	agg := NewAggregator()
	newTestFeed(t, agg, 1, 8, 173_254_196) // an uneven rate to exercise rounding

	rate, err := agg.Resolve(MustSequence(Hop{Feed: 1}, Hop{Feed: 1, Invert: true}))
	require.NoError(t, err)

	diff := new(big.Int).Sub(rate, oneE18)
	diff.Abs(diff)
	// Chaining a hop with its exact inverse recovers the identity within one
	// unit of fixed-point rounding per hop.
	if diff.Cmp(big.NewInt(2)) > 0 {
		t.Fatalf("expected identity rate within rounding, got %s", rate)
	}
}

func TestResolveEmptySequenceIsIdentity(t *testing.T) {
	agg := NewAggregator()
	rate, err := agg.Resolve(Sequence{})
	require.NoError(t, err)
	require.Zero(t, rate.Cmp(oneE18))
}

func TestResolveInactiveFeedFails(t *testing.T) {
	agg := NewAggregator()
	source := newTestFeed(t, agg, 1, 18, 1)
	source.Fail(errors.New("upstream down"))
	_, err := agg.CheckFeed(1)
	require.NoError(t, err)

	_, err = agg.Resolve(MustSequence(Hop{Feed: 1}))
	require.ErrorIs(t, err, nativecommon.ErrFeedInactive)
}

func TestResolveOverflowIsFatal(t *testing.T) {
	agg := NewAggregator()
	huge := new(big.Int).Mul(MaxUSDValue(), big.NewInt(10))
	source := NewManualSource(18)
	source.SetAnswer(huge, time.Now())
	require.NoError(t, agg.AddFeed(1, "A", "B", source))

	_, err := agg.Resolve(MustSequence(Hop{Feed: 1}))
	require.ErrorIs(t, err, nativecommon.ErrOverflow)
}

func TestAddFeedRejectsDuplicatesAndWideDecimals(t *testing.T) {
	agg := NewAggregator()
	newTestFeed(t, agg, 1, 18, 1)
	require.Error(t, agg.AddFeed(1, "A", "B", NewManualSource(18)))
	require.Error(t, agg.AddFeed(2, "A", "B", NewManualSource(19)))
}
