package network

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	chainID *big.Int
	closed  bool
}

func (f *fakeClient) ChainID(context.Context) (*big.Int, error) { return f.chainID, nil }
func (f *fakeClient) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, nil
}
func (f *fakeClient) Close() { f.closed = true }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSetNetwork(t *testing.T) {
	ctx := context.Background()
	dialed := map[string]*fakeClient{
		"http://arb":  {chainID: big.NewInt(42161)},
		"http://arb2": {chainID: big.NewInt(42161)},
		"http://eth":  {chainID: big.NewInt(1)},
	}
	reg, err := New(Config{
		Logger: testLogger(),
		Dial: func(_ context.Context, url string) (Client, error) {
			c, ok := dialed[url]
			if !ok {
				return nil, errors.New("unreachable")
			}
			return c, nil
		},
		DialAttempts: 1,
	})
	require.NoError(t, err)

	t.Run("Configures", func(t *testing.T) {
		require.NoError(t, reg.SetNetwork(ctx, 42161, NetworkConfig{RPCURL: "http://arb"}))
		id, err := reg.ChainID(ctx, 42161)
		require.NoError(t, err)
		assert.Equal(t, uint64(42161), id)
	})

	t.Run("ReplacingClosesPrevious", func(t *testing.T) {
		require.NoError(t, reg.SetNetwork(ctx, 42161, NetworkConfig{RPCURL: "http://arb2"}))
		assert.True(t, dialed["http://arb"].closed)
		assert.False(t, dialed["http://arb2"].closed)
	})

	t.Run("MismatchIsRejected", func(t *testing.T) {
		err := reg.SetNetwork(ctx, 10, NetworkConfig{RPCURL: "http://eth"})
		assert.ErrorIs(t, err, ErrChainIDMismatch)
		assert.True(t, dialed["http://eth"].closed)
		_, err = reg.Client(10)
		assert.ErrorIs(t, err, ErrNetworkNotSet)
	})

	t.Run("DialFailure", func(t *testing.T) {
		assert.Error(t, reg.SetNetwork(ctx, 137, NetworkConfig{RPCURL: "http://nowhere"}))
		assert.Error(t, reg.SetNetwork(ctx, 137, NetworkConfig{}))
	})

	t.Run("Close", func(t *testing.T) {
		reg.Close()
		assert.True(t, dialed["http://arb2"].closed)
		assert.Empty(t, reg.Chains())
	})
}

func TestConfigValidate(t *testing.T) {
	_, err := New(Config{Dial: DialEthClient})
	assert.EqualError(t, err, "config: Logger is required")

	_, err = New(Config{Logger: testLogger()})
	assert.EqualError(t, err, "config: Dial is required")
}
