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

const derivedModuleName = "pricer.derived"

// ConversionFunc maps an amount of the derived asset to the corresponding
// amounts of its underlying assets, one entry per registered underlying, in
// registration order.
type ConversionFunc func(key AssetKey, amount *big.Int) ([]*big.Int, error)

type derivedAsset struct {
	underlying []AssetKey
	convert    ConversionFunc
}

// DerivedModule prices assets defined in terms of other registered assets,
// for example LP shares redeemable pro rata against pool reserves. Exposure
// for derived assets is capped in USD terms because the underlying mix shifts
// with every pool trade.
type DerivedModule struct {
	mu          sync.RWMutex
	dispatch    Dispatcher
	assets      map[AssetKey]*derivedAsset
	caps        map[AssetKey]*big.Int
	factors     map[riskKey]risk.Factors
	typeFactors risk.Factors
	pauses      nativecommon.PauseView
}

func NewDerivedModule() *DerivedModule {
	return &DerivedModule{
		assets:      make(map[AssetKey]*derivedAsset),
		caps:        make(map[AssetKey]*big.Int),
		factors:     make(map[riskKey]risk.Factors),
		typeFactors: risk.Factors{CollateralBps: risk.FactorDenominator, LiquidationBps: risk.FactorDenominator},
	}
}

// SetDispatcher wires the module back into the registry so underlying assets
// resolve through whichever pricer owns them.
func (m *DerivedModule) SetDispatcher(d Dispatcher) {
	if m == nil {
		return
	}
	m.dispatch = d
}

func (m *DerivedModule) SetPauses(p nativecommon.PauseView) {
	if m == nil {
		return
	}
	m.pauses = p
}

// Register binds the derived asset to its underlying set and conversion. The
// underlying keys must already be priceable; the registry enforces that and
// the resulting depth bound before delegating here.
func (m *DerivedModule) Register(key AssetKey, underlying []AssetKey, convert ConversionFunc) error {
	if m == nil {
		return fmt.Errorf("pricer: derived module not configured")
	}
	if len(underlying) == 0 {
		return fmt.Errorf("pricer: derived asset %s has no underlying assets", key.Hex())
	}
	if convert == nil {
		return fmt.Errorf("pricer: derived asset %s has no conversion", key.Hex())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.assets[key]; exists {
		return fmt.Errorf("%w: %s", errAssetExists, key.Hex())
	}
	m.assets[key] = &derivedAsset{
		underlying: append([]AssetKey(nil), underlying...),
		convert:    convert,
	}
	return nil
}

// SetExposureCap configures the maximum protocol-wide exposure for the asset
// in 18-decimal USD terms. A nil cap removes the limit.
func (m *DerivedModule) SetExposureCap(key AssetKey, cap *big.Int) {
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

func (m *DerivedModule) SetRiskFactors(creditor common.Address, key AssetKey, factors risk.Factors) error {
	if m == nil {
		return fmt.Errorf("pricer: derived module not configured")
	}
	if err := factors.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.factors[riskKey{creditor: creditor, asset: key}] = factors
	m.mu.Unlock()
	return nil
}

func (m *DerivedModule) SetTypeFactors(factors risk.Factors) error {
	if m == nil {
		return fmt.Errorf("pricer: derived module not configured")
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
func (m *DerivedModule) Owns(key AssetKey) bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.assets[key]
	return ok
}

// Underlying returns the registered underlying set for the key, or nil when
// the key is not a derived asset.
func (m *DerivedModule) Underlying(key AssetKey) []AssetKey {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.assets[key]
	if !ok {
		return nil
	}
	return append([]AssetKey(nil), cfg.underlying...)
}

func (m *DerivedModule) asset(key AssetKey) (*derivedAsset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.assets[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", nativecommon.ErrAssetNotAllowed, key.Hex())
	}
	return cfg, nil
}

func (m *DerivedModule) effectiveFactors(creditor common.Address, key AssetKey) risk.Factors {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return risk.Combine(m.factors[riskKey{creditor: creditor, asset: key}], m.typeFactors)
}

// usdValue prices an amount of the derived asset by converting it into
// underlying amounts and summing the dispatched values. The underlying
// factors are discarded; the derived asset carries its own.
func (m *DerivedModule) usdValue(led ledger.View, creditor common.Address, cfg *derivedAsset, key AssetKey, amount *big.Int) (*big.Int, error) {
	total := big.NewInt(0)
	if amount.Sign() == 0 {
		return total, nil
	}
	amounts, err := cfg.convert(key, amount)
	if err != nil {
		return nil, fmt.Errorf("pricer: convert %s: %w", key.Hex(), err)
	}
	if len(amounts) != len(cfg.underlying) {
		return nil, fmt.Errorf("%w: conversion for %s", nativecommon.ErrArrayLengthMismatch, key.Hex())
	}
	for i, underlying := range cfg.underlying {
		valuation, err := m.dispatch.Value(led, creditor, underlying, amounts[i])
		if err != nil {
			return nil, err
		}
		total.Add(total, valuation.USDValue)
		if total.Cmp(oracle.MaxUSDValue()) > 0 {
			return nil, fmt.Errorf("%w: derived value", nativecommon.ErrOverflow)
		}
	}
	return total, nil
}

// Value prices the amount without touching any state. A zero amount is
// answered without consulting the underlying assets so factor queries work
// even while a constituent feed is inactive.
func (m *DerivedModule) Value(led ledger.View, creditor common.Address, key AssetKey, amount *big.Int) (Valuation, error) {
	cfg, err := m.asset(key)
	if err != nil {
		return Valuation{}, err
	}
	if amount == nil || amount.Sign() < 0 {
		return Valuation{}, errInvalidAmount
	}
	factors := m.effectiveFactors(creditor, key)
	if amount.Sign() == 0 {
		return Valuation{
			USDValue:          big.NewInt(0),
			CollateralFactor:  factors.CollateralBps,
			LiquidationFactor: factors.LiquidationBps,
		}, nil
	}
	if m.dispatch == nil {
		return Valuation{}, errNilDispatcher
	}
	value, err := m.usdValue(led, creditor, cfg, key, amount)
	if err != nil {
		return Valuation{}, err
	}
	return Valuation{
		USDValue:          value,
		CollateralFactor:  factors.CollateralBps,
		LiquidationFactor: factors.LiquidationBps,
	}, nil
}

// Deposit records the exposure increase, forwarding the converted underlying
// amounts into their own pricers so every layer's ledger stays consistent.
// The protocol-wide USD exposure moves by the revaluation delta of the whole
// position, clamped at zero, and is then checked against the cap.
func (m *DerivedModule) Deposit(led ledger.View, creditor common.Address, key AssetKey, amount *big.Int) (*big.Int, error) {
	if err := nativecommon.Guard(m.pauses, derivedModuleName); err != nil {
		return nil, err
	}
	cfg, err := m.asset(key)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	if m.dispatch == nil {
		return nil, errNilDispatcher
	}

	amounts, err := cfg.convert(key, amount)
	if err != nil {
		return nil, fmt.Errorf("pricer: convert %s: %w", key.Hex(), err)
	}
	if len(amounts) != len(cfg.underlying) {
		return nil, fmt.Errorf("%w: conversion for %s", nativecommon.ErrArrayLengthMismatch, key.Hex())
	}
	deposited := big.NewInt(0)
	for i, underlying := range cfg.underlying {
		if amounts[i].Sign() == 0 {
			continue
		}
		value, err := m.dispatch.Deposit(led, creditor, underlying, amounts[i])
		if err != nil {
			return nil, err
		}
		deposited.Add(deposited, value)
		if deposited.Cmp(oracle.MaxUSDValue()) > 0 {
			return nil, fmt.Errorf("%w: derived deposit", nativecommon.ErrOverflow)
		}
	}

	position, _, err := led.Position(creditor, key)
	if err != nil {
		return nil, err
	}
	position = position.Clone()
	newExposure := new(big.Int).Add(position.LastExposure, amount)
	if newExposure.BitLen() > 256 {
		return nil, fmt.Errorf("%w: position exposure", nativecommon.ErrOverflow)
	}
	newValue, err := m.usdValue(led, creditor, cfg, key, newExposure)
	if err != nil {
		return nil, err
	}

	protocol, err := led.ProtocolExposure(key)
	if err != nil {
		return nil, err
	}
	next := new(big.Int).Add(protocol, newValue)
	next.Sub(next, position.LastUSDValue)
	if next.Sign() < 0 {
		next = big.NewInt(0)
	}
	if next.BitLen() > 256 {
		return nil, fmt.Errorf("%w: protocol exposure", nativecommon.ErrOverflow)
	}
	m.mu.RLock()
	cap, capped := m.caps[key]
	m.mu.RUnlock()
	if capped && next.Cmp(cap) > 0 {
		return nil, fmt.Errorf("%w: %s", nativecommon.ErrExposureCapExceeded, key.Hex())
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
func (m *DerivedModule) Withdraw(led ledger.View, creditor common.Address, key AssetKey, amount *big.Int) (*big.Int, error) {
	if err := nativecommon.Guard(m.pauses, derivedModuleName); err != nil {
		return nil, err
	}
	cfg, err := m.asset(key)
	if err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	if m.dispatch == nil {
		return nil, errNilDispatcher
	}

	position, ok, err := led.Position(creditor, key)
	if err != nil {
		return nil, err
	}
	if !ok || position.LastExposure.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: withdraw %s", nativecommon.ErrUnderflow, key.Hex())
	}
	position = position.Clone()

	amounts, err := cfg.convert(key, amount)
	if err != nil {
		return nil, fmt.Errorf("pricer: convert %s: %w", key.Hex(), err)
	}
	if len(amounts) != len(cfg.underlying) {
		return nil, fmt.Errorf("%w: conversion for %s", nativecommon.ErrArrayLengthMismatch, key.Hex())
	}
	withdrawn := big.NewInt(0)
	for i, underlying := range cfg.underlying {
		if amounts[i].Sign() == 0 {
			continue
		}
		value, err := m.dispatch.Withdraw(led, creditor, underlying, amounts[i])
		if err != nil {
			return nil, err
		}
		withdrawn.Add(withdrawn, value)
		if withdrawn.Cmp(oracle.MaxUSDValue()) > 0 {
			return nil, fmt.Errorf("%w: derived withdrawal", nativecommon.ErrOverflow)
		}
	}

	newExposure := new(big.Int).Sub(position.LastExposure, amount)
	newValue, err := m.usdValue(led, creditor, cfg, key, newExposure)
	if err != nil {
		return nil, err
	}

	protocol, err := led.ProtocolExposure(key)
	if err != nil {
		return nil, err
	}
	next := new(big.Int).Add(protocol, newValue)
	next.Sub(next, position.LastUSDValue)
	if next.Sign() < 0 {
		next = big.NewInt(0)
	}
	if next.BitLen() > 256 {
		return nil, fmt.Errorf("%w: protocol exposure", nativecommon.ErrOverflow)
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

// PoolStats exposes the live reserve snapshot a share-based conversion needs.
type PoolStats interface {
	// Reserves returns the pooled amount of each underlying asset, in the
	// same order the derived asset registered them.
	Reserves() ([]*big.Int, error)
	// TotalShares returns the outstanding share supply.
	TotalShares() (*big.Int, error)
}

// PoolShareConversion builds a ConversionFunc that redeems shares pro rata
// against the pool's current reserves, rounding each leg down.
func PoolShareConversion(stats PoolStats) ConversionFunc {
	return func(key AssetKey, amount *big.Int) ([]*big.Int, error) {
		reserves, err := stats.Reserves()
		if err != nil {
			return nil, err
		}
		shares, err := stats.TotalShares()
		if err != nil {
			return nil, err
		}
		if shares == nil || shares.Sign() <= 0 {
			return nil, fmt.Errorf("pricer: pool %s has no outstanding shares", key.Hex())
		}
		amounts := make([]*big.Int, len(reserves))
		for i, reserve := range reserves {
			out := new(big.Int).Mul(amount, reserve)
			out.Quo(out, shares)
			amounts[i] = out
		}
		return amounts, nil
	}
}
