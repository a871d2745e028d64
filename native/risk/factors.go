// Package risk holds the pure arithmetic combining creditor-specific and
// asset-type-wide risk parameters into effective collateral and liquidation
// factors.
package risk

import (
	"fmt"
	"math/big"
)

// FactorDenominator is the fixed denominator for all risk factors: a factor
// of 10_000 is 100%, giving 4-decimal precision.
const FactorDenominator = 10_000

// Factors groups the collateral and liquidation factors for one
// (creditor, asset) pair or for an asset type as a whole.
type Factors struct {
	// CollateralBps scales an asset's USD value down to usable borrowing
	// power, expressed over FactorDenominator.
	CollateralBps uint64
	// LiquidationBps scales an asset's USD value down to its value at forced
	// liquidation, expressed over FactorDenominator.
	LiquidationBps uint64
}

// Validate rejects factors outside [0, FactorDenominator] and a liquidation
// factor below the collateral factor.
func (f Factors) Validate() error {
	if f.CollateralBps > FactorDenominator {
		return fmt.Errorf("risk: collateral factor %d exceeds denominator", f.CollateralBps)
	}
	if f.LiquidationBps > FactorDenominator {
		return fmt.Errorf("risk: liquidation factor %d exceeds denominator", f.LiquidationBps)
	}
	if f.LiquidationBps < f.CollateralBps {
		return fmt.Errorf("risk: liquidation factor %d below collateral factor %d", f.LiquidationBps, f.CollateralBps)
	}
	return nil
}

// Effective renormalises the product of two factors back over the
// denominator. The clamp defends against a misconfigured denominator
// mismatch; mathematically the product of two fractions at most one cannot
// exceed either input.
func Effective(creditorBps, assetTypeBps uint64) uint64 {
	effective := creditorBps * assetTypeBps / FactorDenominator
	if effective > FactorDenominator {
		effective = FactorDenominator
	}
	return effective
}

// Combine applies Effective to both factor pairs.
func Combine(creditor, assetType Factors) Factors {
	return Factors{
		CollateralBps:  Effective(creditor.CollateralBps, assetType.CollateralBps),
		LiquidationBps: Effective(creditor.LiquidationBps, assetType.LiquidationBps),
	}
}

// Apply scales a USD value by the factor, rounding down.
func Apply(value *big.Int, factorBps uint64) *big.Int {
	if value == nil || value.Sign() == 0 || factorBps == 0 {
		return big.NewInt(0)
	}
	scaled := new(big.Int).Mul(value, new(big.Int).SetUint64(factorBps))
	return scaled.Quo(scaled, big.NewInt(FactorDenominator))
}
