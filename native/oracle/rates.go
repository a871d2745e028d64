package oracle

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	nativecommon "pricevault/native/common"
)

var (
	oneE18 = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	oneE36 = new(big.Int).Exp(big.NewInt(10), big.NewInt(36), nil)

	// maxRate bounds every running rate and value so that a subsequent
	// multiplication by an 18-decimal amount cannot leave the 256-bit range
	// reserved for USD-scale arithmetic.
	maxRate = func() *big.Int {
		max := new(uint256.Int).Not(uint256.NewInt(0))
		return new(big.Int).Quo(max.ToBig(), oneE18)
	}()
)

// MaxUSDValue is the ceiling for USD-scale values produced by the engine.
func MaxUSDValue() *big.Int {
	return new(big.Int).Set(maxRate)
}

// Resolve composes the sequence into one rate expressed as quote units per
// base unit in 18-decimal fixed point. An empty sequence resolves to the
// identity rate. The hot path trusts each feed's activation flag and never
// re-checks staleness.
func (a *Aggregator) Resolve(seq Sequence) (*big.Int, error) {
	if a == nil {
		return nil, fmt.Errorf("oracle: aggregator not configured")
	}
	rate := new(big.Int).Set(oneE18)
	for _, hop := range seq.Hops() {
		feed, err := a.feed(hop.Feed)
		if err != nil {
			return nil, err
		}
		a.mu.RLock()
		active := feed.Active
		a.mu.RUnlock()
		if !active {
			return nil, fmt.Errorf("%w: feed %d", nativecommon.ErrFeedInactive, hop.Feed)
		}
		answer, _, err := feed.Source.LatestAnswer()
		if err != nil {
			return nil, fmt.Errorf("oracle: feed %d: %w", hop.Feed, err)
		}
		if answer == nil || answer.Sign() <= 0 {
			return nil, fmt.Errorf("%w: feed %d", errInvalidAnswer, hop.Feed)
		}
		corrected := new(big.Int).Mul(answer, feed.Correction)
		hopRate := corrected
		if hop.Invert {
			hopRate = new(big.Int).Quo(oneE36, corrected)
		}
		rate.Mul(rate, hopRate)
		rate.Quo(rate, oneE18)
		if rate.Cmp(maxRate) > 0 {
			return nil, fmt.Errorf("%w: rate for feed %d", nativecommon.ErrOverflow, hop.Feed)
		}
	}
	return rate, nil
}
