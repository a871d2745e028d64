package asset

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	nativecommon "pricevault/native/common"
	"pricevault/native/ledger"
	"pricevault/native/oracle"
	"pricevault/native/risk"
	"pricevault/storage"
)

var (
	testCreditor = common.HexToAddress("0x00000000000000000000000000000000000000AA")
	usdcKey      = NewAssetKey(common.HexToAddress("0x0000000000000000000000000000000000000C01"), 0)
)

// newUSDCFixture registers a 6-decimal asset priced through a single
// 8-decimal feed reporting $1.00.
func newUSDCFixture(t *testing.T) (*PrimaryModule, *ledger.Ledger, *oracle.ManualSource) {
	t.Helper()
	rates := oracle.NewAggregator()
	source := oracle.NewManualSource(8)
	source.SetAnswer(big.NewInt(100_000_000), time.Now())
	require.NoError(t, rates.AddFeed(1, "USDC", "USD", source))

	module := NewPrimaryModule(rates)
	require.NoError(t, module.Register(usdcKey, oracle.MustSequence(oracle.Hop{Feed: 1}), 6))
	return module, ledger.New(storage.NewMemDB()), source
}

func TestPrimaryValueSixDecimals(t *testing.T) {
	module, led, _ := newUSDCFixture(t)

	valuation, err := module.Value(led, testCreditor, usdcKey, big.NewInt(2_000_000))
	require.NoError(t, err)

	want := new(big.Int).Mul(big.NewInt(2), oneE18)
	require.Zero(t, valuation.USDValue.Cmp(want))
	require.Equal(t, uint64(risk.FactorDenominator), valuation.CollateralFactor)
	require.Equal(t, uint64(risk.FactorDenominator), valuation.LiquidationFactor)
}

func TestPrimaryFactorsCombine(t *testing.T) {
	module, led, _ := newUSDCFixture(t)
	require.NoError(t, module.SetRiskFactors(testCreditor, usdcKey, risk.Factors{CollateralBps: 8_000, LiquidationBps: 9_000}))
	require.NoError(t, module.SetTypeFactors(risk.Factors{CollateralBps: 5_000, LiquidationBps: 10_000}))

	valuation, err := module.Value(led, testCreditor, usdcKey, big.NewInt(1_000_000))
	require.NoError(t, err)
	require.Equal(t, uint64(4_000), valuation.CollateralFactor)
	require.Equal(t, uint64(9_000), valuation.LiquidationFactor)
}

func TestPrimaryDepositWithdrawRoundTrip(t *testing.T) {
	module, led, _ := newUSDCFixture(t)
	amount := big.NewInt(1_500_000)

	deposited, err := module.Deposit(led, testCreditor, usdcKey, amount)
	require.NoError(t, err)
	wantUSD, _ := new(big.Int).SetString("1500000000000000000", 10)
	require.Zero(t, deposited.Cmp(wantUSD))

	exposure, err := led.ProtocolExposure(usdcKey)
	require.NoError(t, err)
	require.Zero(t, exposure.Cmp(amount))

	position, ok, err := led.Position(testCreditor, usdcKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, position.LastExposure.Cmp(amount))
	require.Zero(t, position.LastUSDValue.Cmp(wantUSD))

	withdrawn, err := module.Withdraw(led, testCreditor, usdcKey, amount)
	require.NoError(t, err)
	require.Zero(t, withdrawn.Cmp(deposited))

	exposure, err = led.ProtocolExposure(usdcKey)
	require.NoError(t, err)
	require.Zero(t, exposure.Sign())

	position, _, err = led.Position(testCreditor, usdcKey)
	require.NoError(t, err)
	require.Zero(t, position.LastExposure.Sign())
	require.Zero(t, position.LastUSDValue.Sign())
}

func TestPrimaryCapBoundary(t *testing.T) {
	module, led, _ := newUSDCFixture(t)
	module.SetExposureCap(usdcKey, big.NewInt(1_000_000))

	// Landing exactly on the cap succeeds.
	_, err := module.Deposit(led, testCreditor, usdcKey, big.NewInt(1_000_000))
	require.NoError(t, err)

	// One unit past it does not.
	_, err = module.Deposit(led, testCreditor, usdcKey, big.NewInt(1))
	require.ErrorIs(t, err, nativecommon.ErrExposureCapExceeded)

	exposure, err := led.ProtocolExposure(usdcKey)
	require.NoError(t, err)
	require.Zero(t, exposure.Cmp(big.NewInt(1_000_000)))
}

func TestPrimaryWithdrawUnderflow(t *testing.T) {
	module, led, _ := newUSDCFixture(t)

	_, err := module.Withdraw(led, testCreditor, usdcKey, big.NewInt(1))
	require.ErrorIs(t, err, nativecommon.ErrUnderflow)

	_, err = module.Deposit(led, testCreditor, usdcKey, big.NewInt(100))
	require.NoError(t, err)
	_, err = module.Withdraw(led, testCreditor, usdcKey, big.NewInt(101))
	require.ErrorIs(t, err, nativecommon.ErrUnderflow)
}

func TestPrimaryInactiveFeedFatal(t *testing.T) {
	module, led, source := newUSDCFixture(t)
	source.Fail(errors.New("upstream down"))
	healthy, err := module.rates.CheckFeed(1)
	require.NoError(t, err)
	require.False(t, healthy)

	_, err = module.Value(led, testCreditor, usdcKey, big.NewInt(1_000_000))
	require.ErrorIs(t, err, nativecommon.ErrFeedInactive)
	_, err = module.Deposit(led, testCreditor, usdcKey, big.NewInt(1_000_000))
	require.ErrorIs(t, err, nativecommon.ErrFeedInactive)
}

func TestPrimaryPauseGuard(t *testing.T) {
	module, led, _ := newUSDCFixture(t)
	switches := nativecommon.NewSwitches()
	module.SetPauses(switches)
	switches.SetPaused(primaryModuleName, true)

	_, err := module.Deposit(led, testCreditor, usdcKey, big.NewInt(1))
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)
	_, err = module.Withdraw(led, testCreditor, usdcKey, big.NewInt(1))
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)

	// Valuation stays readable while mutations are halted.
	_, err = module.Value(led, testCreditor, usdcKey, big.NewInt(1))
	require.NoError(t, err)
}

func TestPrimaryRegisterValidation(t *testing.T) {
	module, led, _ := newUSDCFixture(t)

	err := module.Register(usdcKey, oracle.MustSequence(oracle.Hop{Feed: 1}), 6)
	require.ErrorIs(t, err, errAssetExists)

	other := NewAssetKey(common.HexToAddress("0x0000000000000000000000000000000000000C02"), 0)
	require.Error(t, module.Register(other, oracle.MustSequence(), 19))

	_, err = module.Value(led, testCreditor, other, big.NewInt(1))
	require.ErrorIs(t, err, nativecommon.ErrAssetNotAllowed)
}
