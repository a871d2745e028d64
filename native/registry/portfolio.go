package registry

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"pricevault/native/asset"
	nativecommon "pricevault/native/common"
	"pricevault/native/oracle"
)

var oneE18 = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// PortfolioValuation is the aggregate answer for one creditor's holdings.
// Assets keeps the per-asset triples in input order; factors are never
// averaged across assets, so risk-weighted totals must be computed per entry.
type PortfolioValuation struct {
	Assets   []asset.Valuation
	TotalUSD *big.Int
}

// ValuePortfolio prices the keyed amounts against committed state. The keys
// and amounts slices must pair up one to one.
func (r *Registry) ValuePortfolio(creditor common.Address, keys []asset.AssetKey, amounts []*big.Int) (PortfolioValuation, error) {
	if r == nil {
		return PortfolioValuation{}, fmt.Errorf("registry: not configured")
	}
	if len(keys) != len(amounts) {
		return PortfolioValuation{}, fmt.Errorf("%w: %d keys, %d amounts", nativecommon.ErrArrayLengthMismatch, len(keys), len(amounts))
	}
	result := PortfolioValuation{
		Assets:   make([]asset.Valuation, 0, len(keys)),
		TotalUSD: big.NewInt(0),
	}
	for i, key := range keys {
		valuation, err := r.Value(r.led, creditor, key, amounts[i])
		if err != nil {
			return PortfolioValuation{}, err
		}
		result.Assets = append(result.Assets, valuation)
		result.TotalUSD.Add(result.TotalUSD, valuation.USDValue)
		if result.TotalUSD.Cmp(oracle.MaxUSDValue()) > 0 {
			return PortfolioValuation{}, fmt.Errorf("%w: portfolio total", nativecommon.ErrOverflow)
		}
	}
	return result, nil
}

// ValuePortfolioIn prices the portfolio and converts the USD total into
// another denomination through the supplied sequence. The conversion happens
// once on the aggregate, never per asset, so rounding is paid a single time.
func (r *Registry) ValuePortfolioIn(creditor common.Address, keys []asset.AssetKey, amounts []*big.Int, denomination oracle.Sequence) (PortfolioValuation, error) {
	result, err := r.ValuePortfolio(creditor, keys, amounts)
	if err != nil {
		return PortfolioValuation{}, err
	}
	rate, err := r.rates.Resolve(denomination)
	if err != nil {
		return PortfolioValuation{}, err
	}
	total := new(big.Int).Mul(result.TotalUSD, rate)
	total.Quo(total, oneE18)
	if total.Cmp(oracle.MaxUSDValue()) > 0 {
		return PortfolioValuation{}, fmt.Errorf("%w: denominated total", nativecommon.ErrOverflow)
	}
	result.TotalUSD = total
	return result, nil
}

// ProcessDeposit runs the deposit recursion inside one transaction. Any
// failure anywhere in the chain, including a cap breach on a nested
// underlying asset, leaves the ledger untouched. Mutations are serialized;
// only one transaction is ever in flight.
func (r *Registry) ProcessDeposit(creditor common.Address, key asset.AssetKey, amount *big.Int) (*big.Int, error) {
	if r == nil {
		return nil, fmt.Errorf("registry: not configured")
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	tx := r.led.Begin()
	defer tx.Rollback()
	value, err := r.Deposit(tx, creditor, key, amount)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return value, nil
}

// ProcessWithdrawal runs the withdrawal recursion inside one transaction.
func (r *Registry) ProcessWithdrawal(creditor common.Address, key asset.AssetKey, amount *big.Int) (*big.Int, error) {
	if r == nil {
		return nil, fmt.Errorf("registry: not configured")
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	tx := r.led.Begin()
	defer tx.Rollback()
	value, err := r.Withdraw(tx, creditor, key, amount)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return value, nil
}
