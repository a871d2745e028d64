// Package asset implements the two pricer kinds of the valuation engine:
// primary assets valued directly through chained price feeds and derived
// assets valued recursively from their underlying asset set.
package asset

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"pricevault/native/ledger"
)

// AssetKey collapses a contract address and numeric sub-id into one
// fixed-width mapping key. The sub-id occupies the first 12 bytes big-endian,
// the address the remaining 20. Sub-id 0 denotes a fungible asset; for
// multi-token contracts it carries the on-chain token id.
type AssetKey [32]byte

// NewAssetKey packs the address and sub-id.
func NewAssetKey(addr common.Address, subID uint64) AssetKey {
	var key AssetKey
	binary.BigEndian.PutUint64(key[4:12], subID)
	copy(key[12:], addr[:])
	return key
}

// Address recovers the contract address component.
func (k AssetKey) Address() common.Address {
	var addr common.Address
	copy(addr[:], k[12:])
	return addr
}

// SubID recovers the numeric sub-id component.
func (k AssetKey) SubID() uint64 {
	return binary.BigEndian.Uint64(k[4:12])
}

func (k AssetKey) Hex() string {
	return hex.EncodeToString(k[:])
}

// Valuation is the result triple produced by every pricer. The factors are
// expressed over risk.FactorDenominator and are never averaged across assets;
// downstream collateral totals are computed as Σ(value × factor).
type Valuation struct {
	USDValue          *big.Int
	CollateralFactor  uint64
	LiquidationFactor uint64
}

// Dispatcher routes an asset key to the pricer that owns it. The registry
// implements it; derived modules recurse through it into their underlying
// assets.
type Dispatcher interface {
	Value(led ledger.View, creditor common.Address, key AssetKey, amount *big.Int) (Valuation, error)
	Deposit(led ledger.View, creditor common.Address, key AssetKey, amount *big.Int) (*big.Int, error)
	Withdraw(led ledger.View, creditor common.Address, key AssetKey, amount *big.Int) (*big.Int, error)
}

var (
	errInvalidAmount = errors.New("pricer: amount must be positive")
	errNilDispatcher = errors.New("pricer: dispatcher not configured")
	errAssetExists   = errors.New("pricer: asset already registered")
)

var oneE18 = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

type riskKey struct {
	creditor common.Address
	asset    AssetKey
}
