package oracle

import (
	"context"
	"errors"
	"math/big"
	"math/rand/v2"
	"net/url"
	"strings"
	"testing"
	"time"

	"rwa-market-indexer/chain"
	"rwa-market-indexer/config"
	"rwa-market-indexer/database"
	"rwa-market-indexer/indexer/abi"
	indexer_testing "rwa-market-indexer/testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

const testPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	oracleAddress = common.HexToAddress("0xDc64a140Aa3E981100a9becA4E685f962f0cF6C9")
	tokenAddress  = common.HexToAddress("0x5FC8d32690cc91D4c39d9d3abcBD16989F875707")
)

var testOracleConfig = config.OracleConfig{
	Enabled:       true,
	TokenAddress:  tokenAddress.Hex(),
	BasePriceWei:  "1000000000000000000",
	ConfidenceBps: 9500,
}

// fakeSubmitter observes the loop state at every call.
type fakeSubmitter struct {
	loop        *PushLoop
	submitErr   error
	confirmErr  error
	seenStates  []State
	submitted   []*big.Int
	blockNumber int64
	noBlock     bool
}

func (f *fakeSubmitter) Submit(_ context.Context, token common.Address, price, confidence *big.Int) (*types.Transaction, error) {
	f.seenStates = append(f.seenStates, f.loop.State())
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, price)

	return types.NewTx(&types.LegacyTx{Nonce: uint64(len(f.submitted)), To: &oracleAddress, Gas: 1}), nil
}

func (f *fakeSubmitter) WaitConfirmed(_ context.Context, tx *types.Transaction) (*types.Receipt, error) {
	f.seenStates = append(f.seenStates, f.loop.State())
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}

	receipt := &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(f.blockNumber),
		Logs: []*types.Log{{
			Topics: []common.Hash{abi.Topic(abi.EventPriceUpdated)},
			Index:  3,
		}},
	}
	if f.noBlock {
		receipt.BlockNumber = nil
	}

	return receipt, nil
}

type failingRecorder struct{}

func (failingRecorder) InsertPrice(context.Context, *database.OraclePrice) (bool, error) {
	return false, errors.New("disk full")
}

func newTestLoop(t *testing.T, submitter *fakeSubmitter, recorder PriceRecorder) *PushLoop {
	t.Helper()

	loop, err := NewPushLoop(submitter, recorder, testOracleConfig, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	submitter.loop = loop

	return loop
}

func newTestStore(t *testing.T) *database.Store {
	t.Helper()

	db, err := database.ConnectTestDB(context.Background())
	require.NoError(t, err)

	return database.NewStore(db)
}

func TestPerturbedPrice(t *testing.T) {
	base := big.NewInt(1_000_000)

	require.Equal(t, "950000", PerturbedPrice(base, -500).String())
	require.Equal(t, "1000000", PerturbedPrice(base, 0).String())
	require.Equal(t, "1050000", PerturbedPrice(base, 500).String())
	require.Equal(t, "1000100", PerturbedPrice(base, 1).String())
}

func TestPriceBandProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("pushed prices stay within 5% of the base price", prop.ForAll(
		func(base int64, seed uint64) bool {
			cfg := testOracleConfig
			cfg.BasePriceWei = big.NewInt(base).String()

			loop, err := NewPushLoop(&fakeSubmitter{}, failingRecorder{}, cfg, rand.New(rand.NewPCG(seed, seed)))
			if err != nil {
				return false
			}

			low := new(big.Int).Quo(new(big.Int).Mul(big.NewInt(base), big.NewInt(9500)), big.NewInt(10000))
			high := new(big.Int).Quo(new(big.Int).Mul(big.NewInt(base), big.NewInt(10500)), big.NewInt(10000))
			for i := 0; i < 20; i++ {
				price := loop.nextPrice()
				if price.Cmp(low) < 0 || price.Cmp(high) > 0 {
					return false
				}
			}

			return true
		},
		gen.Int64Range(1, 1_000_000_000_000_000_000),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}

func TestTickRecordsPushedPrice(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	submitter := &fakeSubmitter{blockNumber: 42}
	loop := newTestLoop(t, submitter, store)

	require.Equal(t, StateIdle, loop.State())
	require.NoError(t, loop.Tick(ctx))
	require.Equal(t, StateIdle, loop.State())
	require.Equal(t, []State{StateSubmitting, StateConfirming}, submitter.seenStates)

	prices, err := store.Prices(ctx, strings.ToLower(tokenAddress.Hex()))
	require.NoError(t, err)
	require.Len(t, prices, 1)
	require.Equal(t, database.PriceSourcePush, prices[0].Source)
	require.Equal(t, submitter.submitted[0].String(), prices[0].PriceWei)
	require.Equal(t, uint64(9500), prices[0].Confidence)
	require.Equal(t, uint64(42), prices[0].BlockNumber)
	require.Equal(t, uint64(3), prices[0].LogIndex)

	// every tick appends
	require.NoError(t, loop.Tick(ctx))
	prices, err = store.Prices(ctx, strings.ToLower(tokenAddress.Hex()))
	require.NoError(t, err)
	require.Len(t, prices, 2)
}

func TestTickFailures(t *testing.T) {
	tests := []struct {
		name      string
		submitter *fakeSubmitter
		recorder  PriceRecorder
		seen      []State
		err       error
	}{
		{
			name:      "submit",
			submitter: &fakeSubmitter{submitErr: errors.New("nonce too low")},
			seen:      []State{StateSubmitting},
		},
		{
			name:      "confirm",
			submitter: &fakeSubmitter{confirmErr: chain.ErrTransactionReverted},
			seen:      []State{StateSubmitting, StateConfirming},
		},
		{
			name:      "record",
			submitter: &fakeSubmitter{},
			recorder:  failingRecorder{},
			seen:      []State{StateSubmitting, StateConfirming},
		},
		{
			name:      "receipt without block",
			submitter: &fakeSubmitter{noBlock: true},
			seen:      []State{StateSubmitting, StateConfirming},
			err:       ErrIncompleteReceipt,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			recorder := tt.recorder
			if recorder == nil {
				recorder = store
			}
			loop := newTestLoop(t, tt.submitter, recorder)

			err := loop.Tick(context.Background())
			require.Error(t, err)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
			}
			require.Equal(t, StateFailed, loop.State())
			require.Equal(t, tt.seen, tt.submitter.seenStates)

			prices, err := store.Prices(context.Background(), strings.ToLower(tokenAddress.Hex()))
			require.NoError(t, err)
			require.Empty(t, prices)
		})
	}
}

func TestNewPushLoopValidates(t *testing.T) {
	cfg := testOracleConfig
	cfg.BasePriceWei = "-1"
	_, err := NewPushLoop(&fakeSubmitter{}, failingRecorder{}, cfg, nil)
	require.Error(t, err)

	cfg = testOracleConfig
	cfg.TokenAddress = "token"
	_, err = NewPushLoop(&fakeSubmitter{}, failingRecorder{}, cfg, nil)
	require.Error(t, err)
}

func TestPushLoopAgainstMockChain(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	mockChain := indexer_testing.NewMockChain(5)
	rawURL, err := mockChain.Start()
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, mockChain.Stop()) })

	nodeURL, err := url.Parse(rawURL)
	require.NoError(t, err)

	transactor, err := chain.NewPriceTransactor(ctx, nodeURL, oracleAddress, testPrivateKey, 10*time.Second)
	require.NoError(t, err)
	defer transactor.Close()

	store := newTestStore(t)
	loop, err := NewPushLoop(transactor, store, testOracleConfig, nil)
	require.NoError(t, err)

	require.NoError(t, loop.Tick(ctx))

	prices, err := store.Prices(ctx, strings.ToLower(tokenAddress.Hex()))
	require.NoError(t, err)
	require.Len(t, prices, 1)
	require.Equal(t, uint64(6), prices[0].BlockNumber)
	require.Equal(t, database.PriceSourcePush, prices[0].Source)

	mockChain.RevertTransactions(true)
	require.ErrorIs(t, loop.Tick(ctx), chain.ErrTransactionReverted)
	require.Equal(t, StateFailed, loop.State())
}
