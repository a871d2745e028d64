package risk

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEffectiveRenormalises(t *testing.T) {
	require.Equal(t, uint64(5000), Effective(5000, FactorDenominator))
	require.Equal(t, uint64(2500), Effective(5000, 5000))
	require.Equal(t, uint64(0), Effective(0, FactorDenominator))
	require.Equal(t, uint64(FactorDenominator), Effective(FactorDenominator, FactorDenominator))
}

func TestEffectiveClampsMisconfiguredInputs(t *testing.T) {
	// A denominator mismatch upstream can push inputs past 10_000; the
	// effective factor must still cap at 100%.
	require.Equal(t, uint64(FactorDenominator), Effective(20_000, 10_000))
}

func TestEffectiveMonotonic(t *testing.T) {
	steps := []uint64{0, 1, 100, 2500, 5000, 9999, FactorDenominator}
	for _, assetType := range steps {
		previous := uint64(0)
		for _, creditor := range steps {
			effective := Effective(creditor, assetType)
			if effective < previous {
				t.Fatalf("effective factor decreased: creditor=%d assetType=%d got %d < %d",
					creditor, assetType, effective, previous)
			}
			if effective > FactorDenominator {
				t.Fatalf("effective factor %d exceeds denominator", effective)
			}
			previous = effective
		}
	}
}

func TestFactorsValidate(t *testing.T) {
	require.NoError(t, Factors{CollateralBps: 8000, LiquidationBps: 9000}.Validate())
	require.Error(t, Factors{CollateralBps: 10_001, LiquidationBps: 10_001}.Validate())
	require.Error(t, Factors{CollateralBps: 9000, LiquidationBps: 8000}.Validate())
}

func TestApplyRoundsDown(t *testing.T) {
	value := big.NewInt(1001)
	require.Equal(t, big.NewInt(500), Apply(value, 5000))
	require.Equal(t, big.NewInt(0), Apply(value, 0))
	require.Equal(t, big.NewInt(0), Apply(nil, 5000))
	require.Equal(t, big.NewInt(1001), Apply(value, FactorDenominator))
}
