package oracle

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCheckFeedStalenessBoundary(t *testing.T) {
	agg := NewAggregator()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	agg.SetClock(func() time.Time { return now })

	source := NewManualSource(8)
	require.NoError(t, agg.AddFeed(1, "ETH", "USD", source))

	// Exactly one week old is still fresh.
	source.SetAnswer(big.NewInt(100_000_000), now.Add(-StaleAfter))
	active, err := agg.CheckFeed(1)
	require.NoError(t, err)
	require.True(t, active)
	require.True(t, agg.IsActive(1))

	// One second past the window is stale and must deactivate the feed.
	source.SetAnswer(big.NewInt(100_000_000), now.Add(-StaleAfter-time.Second))
	active, err = agg.CheckFeed(1)
	require.NoError(t, err)
	require.False(t, active)
	require.False(t, agg.IsActive(1))
}

func TestCheckFeedSentinelBounds(t *testing.T) {
	agg := NewAggregator()
	source := NewManualSource(8)
	source.SetBounds(big.NewInt(1), big.NewInt(1_000_000))
	require.NoError(t, agg.AddFeed(1, "ETH", "USD", source))

	source.SetAnswer(big.NewInt(1), time.Now())
	active, err := agg.CheckFeed(1)
	require.NoError(t, err)
	require.False(t, active, "answer pegged at min sentinel must deactivate")

	source.SetAnswer(big.NewInt(1_000_000), time.Now())
	active, err = agg.CheckFeed(1)
	require.NoError(t, err)
	require.False(t, active, "answer pegged at max sentinel must deactivate")

	source.SetAnswer(big.NewInt(500), time.Now())
	active, err = agg.CheckFeed(1)
	require.NoError(t, err)
	require.True(t, active, "healthy answer must reactivate the feed")
}

func TestCheckFeedSourceFailureDeactivates(t *testing.T) {
	agg := NewAggregator()
	source := NewManualSource(8)
	source.SetAnswer(big.NewInt(100), time.Now())
	require.NoError(t, agg.AddFeed(1, "ETH", "USD", source))

	source.Fail(errors.New("rpc timeout"))
	active, err := agg.CheckFeed(1)
	require.NoError(t, err, "source failures convert to a flag update, not an error")
	require.False(t, active)

	// The flag is sticky until an explicit re-validation passes.
	_, err = agg.Resolve(MustSequence(Hop{Feed: 1}))
	require.Error(t, err)

	source.SetAnswer(big.NewInt(100), time.Now())
	active, err = agg.CheckFeed(1)
	require.NoError(t, err)
	require.True(t, active)

	_, err = agg.Resolve(MustSequence(Hop{Feed: 1}))
	require.NoError(t, err)
}

func TestCheckFeedUnknownFeed(t *testing.T) {
	agg := NewAggregator()
	_, err := agg.CheckFeed(99)
	require.Error(t, err)
}
