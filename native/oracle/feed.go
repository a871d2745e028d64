// Package oracle resolves packed sequences of price-feed hops into a single
// 18-decimal fixed point rate, and owns the health checks that decommission
// and re-validate individual feeds.
package oracle

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

// errFeedExists guards the register-at-most-once invariant.
var (
	errFeedExists    = errors.New("oracle: feed already registered")
	errFeedNotFound  = errors.New("oracle: feed not registered")
	errNilSource     = errors.New("oracle: feed source required")
	errDecimalsRange = errors.New("oracle: feed decimals exceed 18")
	errInvalidAnswer = errors.New("oracle: feed answer must be positive")
)

// StaleAfter is the default window after which an un-updated feed is judged
// stale by the health check. A feed updated exactly one window ago is still
// fresh; one second past it is stale.
const StaleAfter = 7 * 24 * time.Hour

// FeedSource is the external price feed collaborator.
type FeedSource interface {
	// LatestAnswer returns the raw answer in the feed's native precision and
	// the time of the last upstream update.
	LatestAnswer() (*big.Int, time.Time, error)
	Decimals() uint8
	// Bounds exposes the configured sentinel min/max answers. A feed pegged
	// at either sentinel is considered unhealthy.
	Bounds() (min, max *big.Int)
}

// Feed captures the registered state for one price relationship. Base and
// Quote tags are informational only.
type Feed struct {
	ID         FeedID
	Base       string
	Quote      string
	Active     bool
	Correction *big.Int
	Source     FeedSource
}

// Aggregator owns the feed table and resolves sequences into rates. Feeds are
// registered once by an operator and never deleted, only deactivated.
type Aggregator struct {
	mu         sync.RWMutex
	feeds      map[FeedID]*Feed
	staleAfter time.Duration
	clock      func() time.Time
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		feeds:      make(map[FeedID]*Feed),
		staleAfter: StaleAfter,
		clock:      time.Now,
	}
}

// SetClock overrides the time source for deterministic tests.
func (a *Aggregator) SetClock(clock func() time.Time) {
	if a == nil || clock == nil {
		return
	}
	a.mu.Lock()
	a.clock = clock
	a.mu.Unlock()
}

// SetStaleAfter overrides the staleness window used by CheckFeed.
func (a *Aggregator) SetStaleAfter(window time.Duration) {
	if a == nil || window <= 0 {
		return
	}
	a.mu.Lock()
	a.staleAfter = window
	a.mu.Unlock()
}

// AddFeed registers a feed under the supplied identifier. The feed starts
// active; its decimal correction brings the source's native precision to
// 18-decimal fixed point.
func (a *Aggregator) AddFeed(id FeedID, base, quote string, source FeedSource) error {
	if a == nil {
		return fmt.Errorf("oracle: aggregator not configured")
	}
	if source == nil {
		return errNilSource
	}
	decimals := source.Decimals()
	if decimals > 18 {
		return fmt.Errorf("%w: %d", errDecimalsRange, decimals)
	}
	correction := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(18-decimals)), nil)
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.feeds[id]; exists {
		return fmt.Errorf("%w: %d", errFeedExists, id)
	}
	a.feeds[id] = &Feed{
		ID:         id,
		Base:       strings.ToUpper(strings.TrimSpace(base)),
		Quote:      strings.ToUpper(strings.TrimSpace(quote)),
		Active:     true,
		Correction: correction,
		Source:     source,
	}
	return nil
}

// IsActive reports the current activation flag for the feed.
func (a *Aggregator) IsActive(id FeedID) bool {
	if a == nil {
		return false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	feed, ok := a.feeds[id]
	return ok && feed.Active
}

// feed returns the registered feed or errFeedNotFound.
func (a *Aggregator) feed(id FeedID) (*Feed, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	feed, ok := a.feeds[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", errFeedNotFound, id)
	}
	return feed, nil
}

// CheckFeed re-validates the feed's health and updates its activation flag in
// both directions. Callable by anyone; this is the only place staleness is
// judged, keeping the hot valuation path to a flag read. A failing source
// call deactivates the feed instead of propagating the error.
func (a *Aggregator) CheckFeed(id FeedID) (bool, error) {
	if a == nil {
		return false, fmt.Errorf("oracle: aggregator not configured")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	feed, ok := a.feeds[id]
	if !ok {
		return false, fmt.Errorf("%w: %d", errFeedNotFound, id)
	}
	answer, updatedAt, err := feed.Source.LatestAnswer()
	if err != nil {
		feed.Active = false
		return false, nil
	}
	healthy := answer != nil && answer.Sign() > 0
	if healthy {
		minAnswer, maxAnswer := feed.Source.Bounds()
		if minAnswer != nil && answer.Cmp(minAnswer) <= 0 {
			healthy = false
		}
		if healthy && maxAnswer != nil && answer.Cmp(maxAnswer) >= 0 {
			healthy = false
		}
	}
	if healthy && a.clock().Sub(updatedAt) > a.staleAfter {
		healthy = false
	}
	feed.Active = healthy
	return healthy, nil
}
