// Package ledger persists per-position and protocol-wide exposure state for
// the valuation engine. All mutation flows run inside a transaction so that a
// failure anywhere in the pricing recursion leaves the store byte-for-byte
// unchanged.
package ledger

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"

	"pricevault/storage"
)

var (
	positionPrefix = []byte("valuation/position/")
	protocolPrefix = []byte("valuation/exposure/")
)

// Position is the recorded state for one (creditor, asset) pair.
type Position struct {
	// LastExposure is the last recorded deposited amount in native units.
	LastExposure *big.Int
	// LastUSDValue is the USD value recorded for the position at the last
	// state change, 18-decimal fixed point.
	LastUSDValue *big.Int
}

// Clone returns a deep copy so callers cannot alias ledger state.
func (p Position) Clone() Position {
	clone := Position{LastExposure: big.NewInt(0), LastUSDValue: big.NewInt(0)}
	if p.LastExposure != nil {
		clone.LastExposure = new(big.Int).Set(p.LastExposure)
	}
	if p.LastUSDValue != nil {
		clone.LastUSDValue = new(big.Int).Set(p.LastUSDValue)
	}
	return clone
}

type storedPosition struct {
	Exposure *big.Int
	USDValue *big.Int
}

type storedAmount struct {
	Value *big.Int
}

// View is the read/write surface the asset modules operate against. The
// Ledger itself is a write-through View; Begin returns a buffered one.
type View interface {
	Position(creditor common.Address, asset [32]byte) (Position, bool, error)
	PutPosition(creditor common.Address, asset [32]byte, position Position) error
	ProtocolExposure(asset [32]byte) (*big.Int, error)
	PutProtocolExposure(asset [32]byte, exposure *big.Int) error
}

// Ledger stores exposure records in the underlying key-value database.
type Ledger struct {
	db storage.Database
}

func New(db storage.Database) *Ledger {
	return &Ledger{db: db}
}

func positionKey(creditor common.Address, asset [32]byte) []byte {
	creditorHex := hex.EncodeToString(creditor[:])
	assetHex := hex.EncodeToString(asset[:])
	key := make([]byte, 0, len(positionPrefix)+len(creditorHex)+1+len(assetHex))
	key = append(key, positionPrefix...)
	key = append(key, creditorHex...)
	key = append(key, '/')
	key = append(key, assetHex...)
	return key
}

func protocolKey(asset [32]byte) []byte {
	assetHex := hex.EncodeToString(asset[:])
	key := make([]byte, 0, len(protocolPrefix)+len(assetHex))
	key = append(key, protocolPrefix...)
	key = append(key, assetHex...)
	return key
}

func encodePosition(position Position) ([]byte, error) {
	stored := storedPosition{Exposure: big.NewInt(0), USDValue: big.NewInt(0)}
	if position.LastExposure != nil {
		if position.LastExposure.Sign() < 0 {
			return nil, fmt.Errorf("ledger: negative exposure")
		}
		stored.Exposure = position.LastExposure
	}
	if position.LastUSDValue != nil {
		if position.LastUSDValue.Sign() < 0 {
			return nil, fmt.Errorf("ledger: negative usd value")
		}
		stored.USDValue = position.LastUSDValue
	}
	return rlp.EncodeToBytes(stored)
}

func decodePosition(raw []byte) (Position, error) {
	var stored storedPosition
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return Position{}, fmt.Errorf("ledger: decode position: %w", err)
	}
	position := Position{LastExposure: stored.Exposure, LastUSDValue: stored.USDValue}
	if position.LastExposure == nil {
		position.LastExposure = big.NewInt(0)
	}
	if position.LastUSDValue == nil {
		position.LastUSDValue = big.NewInt(0)
	}
	return position, nil
}

func encodeAmount(amount *big.Int) ([]byte, error) {
	stored := storedAmount{Value: big.NewInt(0)}
	if amount != nil {
		if amount.Sign() < 0 {
			return nil, fmt.Errorf("ledger: negative amount")
		}
		stored.Value = amount
	}
	return rlp.EncodeToBytes(stored)
}

func decodeAmount(raw []byte) (*big.Int, error) {
	var stored storedAmount
	if err := rlp.DecodeBytes(raw, &stored); err != nil {
		return nil, fmt.Errorf("ledger: decode amount: %w", err)
	}
	if stored.Value == nil {
		return big.NewInt(0), nil
	}
	return stored.Value, nil
}

// Position loads the record for the pair; ok is false when none was written.
func (l *Ledger) Position(creditor common.Address, asset [32]byte) (Position, bool, error) {
	raw, ok, err := l.db.Get(positionKey(creditor, asset))
	if err != nil || !ok {
		return Position{}, false, err
	}
	position, err := decodePosition(raw)
	if err != nil {
		return Position{}, false, err
	}
	return position, true, nil
}

func (l *Ledger) PutPosition(creditor common.Address, asset [32]byte, position Position) error {
	encoded, err := encodePosition(position)
	if err != nil {
		return err
	}
	return l.db.Put(positionKey(creditor, asset), encoded)
}

// ProtocolExposure returns the cumulative exposure recorded for the asset
// across all positions. Missing records read as zero.
func (l *Ledger) ProtocolExposure(asset [32]byte) (*big.Int, error) {
	raw, ok, err := l.db.Get(protocolKey(asset))
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return decodeAmount(raw)
}

func (l *Ledger) PutProtocolExposure(asset [32]byte, exposure *big.Int) error {
	encoded, err := encodeAmount(exposure)
	if err != nil {
		return err
	}
	return l.db.Put(protocolKey(asset), encoded)
}
