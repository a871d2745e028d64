package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"pricevault/storage"
)

var (
	testCreditor = common.HexToAddress("0x00000000000000000000000000000000000000AA")
	testAsset    = [32]byte{0x01, 0x02}
)

func TestPositionRoundTrip(t *testing.T) {
	led := New(storage.NewMemDB())

	_, ok, err := led.Position(testCreditor, testAsset)
	require.NoError(t, err)
	require.False(t, ok)

	position := Position{LastExposure: big.NewInt(500), LastUSDValue: big.NewInt(1_000)}
	require.NoError(t, led.PutPosition(testCreditor, testAsset, position))

	loaded, ok, err := led.Position(testCreditor, testAsset)
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, loaded.LastExposure.Cmp(big.NewInt(500)))
	require.Zero(t, loaded.LastUSDValue.Cmp(big.NewInt(1_000)))
}

func TestProtocolExposureDefaultsToZero(t *testing.T) {
	led := New(storage.NewMemDB())
	exposure, err := led.ProtocolExposure(testAsset)
	require.NoError(t, err)
	require.Zero(t, exposure.Sign())

	require.NoError(t, led.PutProtocolExposure(testAsset, big.NewInt(42)))
	exposure, err = led.ProtocolExposure(testAsset)
	require.NoError(t, err)
	require.Zero(t, exposure.Cmp(big.NewInt(42)))
}

func TestNegativeValuesRejected(t *testing.T) {
	led := New(storage.NewMemDB())
	err := led.PutPosition(testCreditor, testAsset, Position{LastExposure: big.NewInt(-1)})
	require.Error(t, err)
	require.Error(t, led.PutProtocolExposure(testAsset, big.NewInt(-1)))
}

func TestTxReadsOwnWrites(t *testing.T) {
	led := New(storage.NewMemDB())
	tx := led.Begin()

	require.NoError(t, tx.PutPosition(testCreditor, testAsset, Position{
		LastExposure: big.NewInt(7),
		LastUSDValue: big.NewInt(70),
	}))

	position, ok, err := tx.Position(testCreditor, testAsset)
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, position.LastExposure.Cmp(big.NewInt(7)))

	// Committed state is untouched until Commit.
	_, ok, err = led.Position(testCreditor, testAsset)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, tx.Commit())
	position, ok, err = led.Position(testCreditor, testAsset)
	require.NoError(t, err)
	require.True(t, ok)
	require.Zero(t, position.LastExposure.Cmp(big.NewInt(7)))
}

func TestTxRollbackLeavesStoreUnchanged(t *testing.T) {
	led := New(storage.NewMemDB())
	require.NoError(t, led.PutProtocolExposure(testAsset, big.NewInt(100)))

	tx := led.Begin()
	require.NoError(t, tx.PutProtocolExposure(testAsset, big.NewInt(900)))
	require.NoError(t, tx.PutPosition(testCreditor, testAsset, Position{LastExposure: big.NewInt(1)}))
	tx.Rollback()

	exposure, err := led.ProtocolExposure(testAsset)
	require.NoError(t, err)
	require.Zero(t, exposure.Cmp(big.NewInt(100)))
	_, ok, err := led.Position(testCreditor, testAsset)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTxCannotCommitTwice(t *testing.T) {
	led := New(storage.NewMemDB())
	tx := led.Begin()
	require.NoError(t, tx.Commit())
	require.Error(t, tx.Commit())
	require.Error(t, tx.PutProtocolExposure(testAsset, big.NewInt(1)))
}
