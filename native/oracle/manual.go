package oracle

import (
	"fmt"
	"math/big"
	"sync"
	"time"
)

// ManualSource is an in-memory FeedSource used for tests and operator
// overrides during incident response.
type ManualSource struct {
	mu        sync.RWMutex
	answer    *big.Int
	updatedAt time.Time
	decimals  uint8
	minAnswer *big.Int
	maxAnswer *big.Int
	err       error
}

// NewManualSource constructs a source reporting the given native precision.
func NewManualSource(decimals uint8) *ManualSource {
	return &ManualSource{decimals: decimals}
}

// SetAnswer records the raw answer and its update time.
func (m *ManualSource) SetAnswer(answer *big.Int, updatedAt time.Time) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if answer != nil {
		m.answer = new(big.Int).Set(answer)
	} else {
		m.answer = nil
	}
	m.updatedAt = updatedAt
	m.err = nil
}

// SetBounds configures the sentinel min/max answers.
func (m *ManualSource) SetBounds(minAnswer, maxAnswer *big.Int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if minAnswer != nil {
		m.minAnswer = new(big.Int).Set(minAnswer)
	} else {
		m.minAnswer = nil
	}
	if maxAnswer != nil {
		m.maxAnswer = new(big.Int).Set(maxAnswer)
	} else {
		m.maxAnswer = nil
	}
}

// Fail makes subsequent LatestAnswer calls return the supplied error.
func (m *ManualSource) Fail(err error) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *ManualSource) LatestAnswer() (*big.Int, time.Time, error) {
	if m == nil {
		return nil, time.Time{}, fmt.Errorf("oracle: manual source not configured")
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.err != nil {
		return nil, time.Time{}, m.err
	}
	if m.answer == nil {
		return nil, time.Time{}, fmt.Errorf("oracle: manual source has no answer")
	}
	return new(big.Int).Set(m.answer), m.updatedAt, nil
}

func (m *ManualSource) Decimals() uint8 {
	return m.decimals
}

func (m *ManualSource) Bounds() (*big.Int, *big.Int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var minAnswer, maxAnswer *big.Int
	if m.minAnswer != nil {
		minAnswer = new(big.Int).Set(m.minAnswer)
	}
	if m.maxAnswer != nil {
		maxAnswer = new(big.Int).Set(m.maxAnswer)
	}
	return minAnswer, maxAnswer
}
