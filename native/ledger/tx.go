package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Tx buffers writes over the ledger until Commit. Reads observe the overlay
// first, then the committed state, giving every operation a consistent
// snapshot of the records it touches. A Tx is not safe for concurrent use;
// the engine holds one per logical operation.
type Tx struct {
	led    *Ledger
	writes map[string][]byte
	order  []string
	done   bool
}

// Begin opens a buffered transaction over the ledger.
func (l *Ledger) Begin() *Tx {
	return &Tx{led: l, writes: make(map[string][]byte)}
}

func (tx *Tx) put(key, value []byte) {
	k := string(key)
	if _, seen := tx.writes[k]; !seen {
		tx.order = append(tx.order, k)
	}
	tx.writes[k] = value
}

func (tx *Tx) Position(creditor common.Address, asset [32]byte) (Position, bool, error) {
	if raw, ok := tx.writes[string(positionKey(creditor, asset))]; ok {
		position, err := decodePosition(raw)
		if err != nil {
			return Position{}, false, err
		}
		return position, true, nil
	}
	return tx.led.Position(creditor, asset)
}

func (tx *Tx) PutPosition(creditor common.Address, asset [32]byte, position Position) error {
	if tx.done {
		return fmt.Errorf("ledger: transaction already finished")
	}
	encoded, err := encodePosition(position)
	if err != nil {
		return err
	}
	tx.put(positionKey(creditor, asset), encoded)
	return nil
}

func (tx *Tx) ProtocolExposure(asset [32]byte) (*big.Int, error) {
	if raw, ok := tx.writes[string(protocolKey(asset))]; ok {
		return decodeAmount(raw)
	}
	return tx.led.ProtocolExposure(asset)
}

func (tx *Tx) PutProtocolExposure(asset [32]byte, exposure *big.Int) error {
	if tx.done {
		return fmt.Errorf("ledger: transaction already finished")
	}
	encoded, err := encodeAmount(exposure)
	if err != nil {
		return err
	}
	tx.put(protocolKey(asset), encoded)
	return nil
}

// Commit flushes the buffered writes in first-write order. The transaction
// cannot be reused afterwards.
func (tx *Tx) Commit() error {
	if tx.done {
		return fmt.Errorf("ledger: transaction already finished")
	}
	tx.done = true
	for _, key := range tx.order {
		if err := tx.led.db.Put([]byte(key), tx.writes[key]); err != nil {
			return err
		}
	}
	return nil
}

// Rollback discards the buffered writes. Safe to call after Commit as a
// deferred cleanup; it is then a no-op.
func (tx *Tx) Rollback() {
	tx.done = true
	tx.writes = nil
	tx.order = nil
}
