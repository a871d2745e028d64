// Package registry owns the asset dispatch table. It routes every asset key
// to the pricer that registered it, enforces the recursion depth bound at
// registration time so the valuation hot path never walks a cycle, and wraps
// all state-changing operations in a ledger transaction.
package registry

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"pricevault/native/asset"
	nativecommon "pricevault/native/common"
	"pricevault/native/ledger"
	"pricevault/native/oracle"
	"pricevault/native/risk"
)

// DefaultMaxDepth bounds the pricing recursion: a primary asset has depth 1,
// a derived asset one more than its deepest underlying.
const DefaultMaxDepth = 5

// Registry composes the two pricer modules behind one asset.Dispatcher.
// Derived assets may only reference keys registered before them, which keeps
// the dependency graph acyclic by construction.
type Registry struct {
	mu       sync.RWMutex
	rates    *oracle.Aggregator
	led      *ledger.Ledger
	primary  *asset.PrimaryModule
	derived  *asset.DerivedModule
	depths   map[asset.AssetKey]int
	maxDepth int

	// writeMu serializes all state-changing operations. Deposits and
	// withdrawals are read-modify-write over shared exposure records, so
	// concurrent transactions would lose updates and defeat the cap check.
	writeMu sync.Mutex
}

func New(rates *oracle.Aggregator, led *ledger.Ledger, maxDepth int) *Registry {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	r := &Registry{
		rates:    rates,
		led:      led,
		primary:  asset.NewPrimaryModule(rates),
		derived:  asset.NewDerivedModule(),
		depths:   make(map[asset.AssetKey]int),
		maxDepth: maxDepth,
	}
	r.derived.SetDispatcher(r)
	return r
}

// SetPauses wires the operator pause switches into both pricer modules.
func (r *Registry) SetPauses(p nativecommon.PauseView) {
	if r == nil {
		return
	}
	r.primary.SetPauses(p)
	r.derived.SetPauses(p)
}

// Rates exposes the feed aggregator for health checks and feed registration.
func (r *Registry) Rates() *oracle.Aggregator {
	if r == nil {
		return nil
	}
	return r.rates
}

// Ledger exposes the committed exposure store.
func (r *Registry) Ledger() *ledger.Ledger {
	if r == nil {
		return nil
	}
	return r.led
}

// RegisterPrimary adds a feed-priced asset at depth 1.
func (r *Registry) RegisterPrimary(key asset.AssetKey, sequence oracle.Sequence, decimals uint8) error {
	if r == nil {
		return fmt.Errorf("registry: not configured")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.depths[key]; exists {
		return fmt.Errorf("registry: asset %s already registered", key.Hex())
	}
	if err := r.primary.Register(key, sequence, decimals); err != nil {
		return err
	}
	r.depths[key] = 1
	return nil
}

// RegisterDerived adds an asset priced through its underlying set. Every
// underlying key must already be registered, and the resulting depth must not
// exceed the configured bound.
func (r *Registry) RegisterDerived(key asset.AssetKey, underlying []asset.AssetKey, convert asset.ConversionFunc) error {
	if r == nil {
		return fmt.Errorf("registry: not configured")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.depths[key]; exists {
		return fmt.Errorf("registry: asset %s already registered", key.Hex())
	}
	depth := 1
	for _, dep := range underlying {
		depDepth, ok := r.depths[dep]
		if !ok {
			return fmt.Errorf("%w: underlying %s for %s", nativecommon.ErrAssetNotAllowed, dep.Hex(), key.Hex())
		}
		if depDepth+1 > depth {
			depth = depDepth + 1
		}
	}
	if depth > r.maxDepth {
		return fmt.Errorf("registry: asset %s depth %d exceeds bound %d", key.Hex(), depth, r.maxDepth)
	}
	if err := r.derived.Register(key, underlying, convert); err != nil {
		return err
	}
	r.depths[key] = depth
	return nil
}

// IsAllowed reports whether the key is registered with either pricer.
func (r *Registry) IsAllowed(key asset.AssetKey) bool {
	return r.Depth(key) > 0
}

// Depth reports the registered recursion depth for the key; zero means
// unregistered.
func (r *Registry) Depth(key asset.AssetKey) int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.depths[key]
}

// SetExposureCap routes the cap to whichever module owns the key. Primary
// caps are in native units, derived caps in 18-decimal USD.
func (r *Registry) SetExposureCap(key asset.AssetKey, cap *big.Int) error {
	switch {
	case r == nil:
		return fmt.Errorf("registry: not configured")
	case r.primary.Owns(key):
		r.primary.SetExposureCap(key, cap)
	case r.derived.Owns(key):
		r.derived.SetExposureCap(key, cap)
	default:
		return fmt.Errorf("%w: %s", nativecommon.ErrAssetNotAllowed, key.Hex())
	}
	return nil
}

// SetRiskFactors routes creditor-specific factors to the owning module.
func (r *Registry) SetRiskFactors(creditor common.Address, key asset.AssetKey, factors risk.Factors) error {
	switch {
	case r == nil:
		return fmt.Errorf("registry: not configured")
	case r.primary.Owns(key):
		return r.primary.SetRiskFactors(creditor, key, factors)
	case r.derived.Owns(key):
		return r.derived.SetRiskFactors(creditor, key, factors)
	default:
		return fmt.Errorf("%w: %s", nativecommon.ErrAssetNotAllowed, key.Hex())
	}
}

// SetPrimaryTypeFactors configures the factors shared by all primary assets.
func (r *Registry) SetPrimaryTypeFactors(factors risk.Factors) error {
	if r == nil {
		return fmt.Errorf("registry: not configured")
	}
	return r.primary.SetTypeFactors(factors)
}

// SetDerivedTypeFactors configures the factors shared by all derived assets.
func (r *Registry) SetDerivedTypeFactors(factors risk.Factors) error {
	if r == nil {
		return fmt.Errorf("registry: not configured")
	}
	return r.derived.SetTypeFactors(factors)
}

// Value dispatches to the owning pricer.
func (r *Registry) Value(led ledger.View, creditor common.Address, key asset.AssetKey, amount *big.Int) (asset.Valuation, error) {
	switch {
	case r == nil:
		return asset.Valuation{}, fmt.Errorf("registry: not configured")
	case r.primary.Owns(key):
		return r.primary.Value(led, creditor, key, amount)
	case r.derived.Owns(key):
		return r.derived.Value(led, creditor, key, amount)
	default:
		return asset.Valuation{}, fmt.Errorf("%w: %s", nativecommon.ErrAssetNotAllowed, key.Hex())
	}
}

// Deposit dispatches to the owning pricer.
func (r *Registry) Deposit(led ledger.View, creditor common.Address, key asset.AssetKey, amount *big.Int) (*big.Int, error) {
	switch {
	case r == nil:
		return nil, fmt.Errorf("registry: not configured")
	case r.primary.Owns(key):
		return r.primary.Deposit(led, creditor, key, amount)
	case r.derived.Owns(key):
		return r.derived.Deposit(led, creditor, key, amount)
	default:
		return nil, fmt.Errorf("%w: %s", nativecommon.ErrAssetNotAllowed, key.Hex())
	}
}

// Withdraw dispatches to the owning pricer.
func (r *Registry) Withdraw(led ledger.View, creditor common.Address, key asset.AssetKey, amount *big.Int) (*big.Int, error) {
	switch {
	case r == nil:
		return nil, fmt.Errorf("registry: not configured")
	case r.primary.Owns(key):
		return r.primary.Withdraw(led, creditor, key, amount)
	case r.derived.Owns(key):
		return r.derived.Withdraw(led, creditor, key, amount)
	default:
		return nil, fmt.Errorf("%w: %s", nativecommon.ErrAssetNotAllowed, key.Hex())
	}
}
