package asset

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	nativecommon "pricevault/native/common"
	"pricevault/native/ledger"
	"pricevault/native/oracle"
	"pricevault/native/risk"
)

const primaryModuleName = "pricer.primary"

type primaryAsset struct {
	sequence oracle.Sequence
	// unit is 10^decimals of the underlying token, used to bring native
	// amounts to the rate's fixed-point scale.
	unit *big.Int
}

// PrimaryModule prices assets directly from feed sequences and tracks their
// exposure in native units against a per-asset cap.
type PrimaryModule struct {
	mu          sync.RWMutex
	rates       *oracle.Aggregator
	assets      map[AssetKey]*primaryAsset
	caps        map[AssetKey]*big.Int
	factors     map[riskKey]risk.Factors
	typeFactors risk.Factors
	pauses      nativecommon.PauseView
}

// NewPrimaryModule constructs a pricer bound to the rate aggregator. The
// asset-type factors default to 100% until configured.
func NewPrimaryModule(rates *oracle.Aggregator) *PrimaryModule {
	return &PrimaryModule{
		rates:       rates,
		assets:      make(map[AssetKey]*primaryAsset),
		caps:        make(map[AssetKey]*big.Int),
		factors:     make(map[riskKey]risk.Factors),
		typeFactors: risk.Factors{CollateralBps: risk.FactorDenominator, LiquidationBps: risk.FactorDenominator},
	}
}

func (m *PrimaryModule) SetPauses(p nativecommon.PauseView) {
	if m == nil {
		return
	}
	m.pauses = p
}

// Register binds the asset key to its feed sequence. An asset key is
// registered at most once and token decimals must not exceed 18.
func (m *PrimaryModule) Register(key AssetKey, sequence oracle.Sequence, decimals uint8) error {
	if m == nil {
		return fmt.Errorf("pricer: primary module not configured")
	}
	if decimals > 18 {
		return fmt.Errorf("pricer: asset decimals %d exceed 18", decimals)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.assets[key]; exists {
		return fmt.Errorf("%w: %s", errAssetExists, key.Hex())
	}
	m.assets[key] = &primaryAsset{
		sequence: sequence,
		unit:     new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil),
	}
	return nil
}

// SetExposureCap configures the maximum protocol-wide exposure for the asset
// in native units. A nil cap removes the limit.
func (m *PrimaryModule) SetExposureCap(key AssetKey, cap *big.Int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cap == nil {
		delete(m.caps, key)
		return
	}
	m.caps[key] = new(big.Int).Set(cap)
}

// SetRiskFactors stores the creditor-specific factors for the asset.
func (m *PrimaryModule) SetRiskFactors(creditor common.Address, key AssetKey, factors risk.Factors) error {
	if m == nil {
		return fmt.Errorf("pricer: primary module not configured")
	}
	if err := factors.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.factors[riskKey{creditor: creditor, asset: key}] = factors
	m.mu.Unlock()
	return nil
}

// SetTypeFactors stores the asset-type-wide factors applied to every asset
// owned by this module.
func (m *PrimaryModule) SetTypeFactors(factors risk.Factors) error {
	if m == nil {
		return fmt.Errorf("pricer: primary module not configured")
	}
	if err := factors.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.typeFactors = factors
	m.mu.Unlock()
	return nil
}

// Owns reports whether the asset key is registered with this module.
func (m *PrimaryModule) Owns(key AssetKey) bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.assets[key]
	return ok
}

func (m *PrimaryModule) asset(key AssetKey) (*primaryAsset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.assets[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", nativecommon.ErrAssetNotAllowed, key.Hex())
	}
	return cfg, nil
}

func (m *PrimaryModule) effectiveFactors(creditor common.Address, key AssetKey) risk.Factors {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return risk.Combine(m.factors[riskKey{creditor: creditor, asset: key}], m.typeFactors)
}

// usdValue converts a native amount via the asset's feed sequence, rounding
// down. Values past the USD-scale ceiling are fatal.
func (m *PrimaryModule) usdValue(cfg *primaryAsset, amount *big.Int) (*big.Int, error) {
	rate, err := m.rates.Resolve(cfg.sequence)
	if err != nil {
		return nil, err
	}
	value := new(big.Int).Mul(amount, rate)
	value.Quo(value, cfg.unit)
	if value.Cmp(oracle.MaxUSDValue()) > 0 {
		return nil, fmt.Errorf("%w: primary value", nativecommon.ErrOverflow)
	}
	return value, nil
}

// Value prices the amount without touching any state.
func (m *PrimaryModule) Value(led ledger.View, creditor common.Address, key AssetKey, amount *big.Int) (Valuation, error) {
	cfg, err := m.asset(key)
	if err != nil {
		return Valuation{}, err
	}
	if amount == nil || amount.Sign() < 0 {
		return Valuation{}, errInvalidAmount
	}
	value, err := m.usdValue(cfg, amount)
	if err != nil {
		return Valuation{}, err
	}
	factors := m.effectiveFactors(creditor, key)
	return Valuation{
		USDValue:          value,
		CollateralFactor:  factors.CollateralBps,
		LiquidationFactor: factors.LiquidationBps,
	}, nil
}

// Deposit records the exposure increase and returns the USD value of the
// deposited amount. Pushing protocol-wide exposure strictly above the cap
// fails with ErrExposureCapExceeded; exactly reaching it succeeds.
func (m *PrimaryModule) Deposit(led ledger.View, creditor common.Address, key AssetKey, amount *big.Int) (*big.Int, error) {
	if err := nativecommon.Guard(m.pauses, primaryModuleName); err != nil {
		return nil, err
	}
	cfg, err := m.asset(key)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}

	exposure, err := led.ProtocolExposure(key)
	if err != nil {
		return nil, err
	}
	next := new(big.Int).Add(exposure, amount)
	if next.BitLen() > 256 {
		return nil, fmt.Errorf("%w: protocol exposure", nativecommon.ErrOverflow)
	}
	m.mu.RLock()
	cap, capped := m.caps[key]
	m.mu.RUnlock()
	if capped && next.Cmp(cap) > 0 {
		return nil, fmt.Errorf("%w: %s", nativecommon.ErrExposureCapExceeded, key.Hex())
	}

	position, _, err := led.Position(creditor, key)
	if err != nil {
		return nil, err
	}
	position = position.Clone()
	newExposure := new(big.Int).Add(position.LastExposure, amount)
	newValue, err := m.usdValue(cfg, newExposure)
	if err != nil {
		return nil, err
	}
	deposited, err := m.usdValue(cfg, amount)
	if err != nil {
		return nil, err
	}

	if err := led.PutProtocolExposure(key, next); err != nil {
		return nil, err
	}
	position.LastExposure = newExposure
	position.LastUSDValue = newValue
	if err := led.PutPosition(creditor, key, position); err != nil {
		return nil, err
	}
	return deposited, nil
}

// Withdraw reverses a deposit. Withdrawing past the recorded position is a
// fatal invariant violation; the protocol-wide counter saturates at zero.
func (m *PrimaryModule) Withdraw(led ledger.View, creditor common.Address, key AssetKey, amount *big.Int) (*big.Int, error) {
	if err := nativecommon.Guard(m.pauses, primaryModuleName); err != nil {
		return nil, err
	}
	cfg, err := m.asset(key)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}

	position, ok, err := led.Position(creditor, key)
	if err != nil {
		return nil, err
	}
	if !ok || position.LastExposure.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: withdraw %s", nativecommon.ErrUnderflow, key.Hex())
	}
	position = position.Clone()

	exposure, err := led.ProtocolExposure(key)
	if err != nil {
		return nil, err
	}
	next := new(big.Int).Sub(exposure, amount)
	if next.Sign() < 0 {
		next = big.NewInt(0)
	}

	newExposure := new(big.Int).Sub(position.LastExposure, amount)
	newValue, err := m.usdValue(cfg, newExposure)
	if err != nil {
		return nil, err
	}
	withdrawn, err := m.usdValue(cfg, amount)
	if err != nil {
		return nil, err
	}

	if err := led.PutProtocolExposure(key, next); err != nil {
		return nil, err
	}
	position.LastExposure = newExposure
	position.LastUSDValue = newValue
	if err := led.PutPosition(creditor, key, position); err != nil {
		return nil, err
	}
	return withdrawn, nil
}
