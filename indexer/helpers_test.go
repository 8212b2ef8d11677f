package indexer

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"rwa-market-indexer/config"
	"rwa-market-indexer/database"
	"rwa-market-indexer/indexer/abi"
	indexer_testing "rwa-market-indexer/testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

var (
	registryAddress    = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	saleAddress        = common.HexToAddress("0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512")
	marketplaceAddress = common.HexToAddress("0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0")
	poolAddress        = common.HexToAddress("0xCf7Ed3AccA5a467e9e704C703E8D87F634fB0Fc9")
	oracleAddress      = common.HexToAddress("0xDc64a140Aa3E981100a9becA4E685f962f0cF6C9")
	tokenAddress       = common.HexToAddress("0x5FC8d32690cc91D4c39d9d3abcBD16989F875707")

	alice = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	bob   = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
	carol = common.HexToAddress("0x90F79bf6EB2c4f870365E785982E1f101E93b906")
)

var testContracts = config.ContractsConfig{
	IdentityRegistry: registryAddress.Hex(),
	TokenSale:        saleAddress.Hex(),
	Marketplace:      marketplaceAddress.Hex(),
	SwapPool:         poolAddress.Hex(),
	PriceOracle:      oracleAddress.Hex(),
}

var testParams = config.IndexerConfig{
	TxIDLength: config.DefaultTxIDLength,
	LogRange:   4,
}

// fakeLedger serves logs from memory with the filtering semantics of
// eth_getLogs.
type fakeLedger struct {
	mu       sync.Mutex
	height   uint64
	logs     []types.Log
	failures map[string]int
	queries  []ethereum.FilterQuery
}

func newFakeLedger(height uint64, logs ...types.Log) *fakeLedger {
	return &fakeLedger{height: height, logs: logs, failures: make(map[string]int)}
}

func (f *fakeLedger) failNext(method string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failures[method] = n
}

func (f *fakeLedger) fail(method string) error {
	if f.failures[method] > 0 {
		f.failures[method]--
		return fmt.Errorf("injected %s failure", method)
	}

	return nil
}

func (f *fakeLedger) CurrentHeight(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("CurrentHeight"); err != nil {
		return 0, err
	}

	return f.height, nil
}

func (f *fakeLedger) BlockTimestamp(_ context.Context, number uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("BlockTimestamp"); err != nil {
		return 0, err
	}

	return indexer_testing.BlockTimestamp(number), nil
}

// FilterLogs returns matches newest first so callers cannot rely on the
// ledger's ordering.
func (f *fakeLedger) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail("FilterLogs"); err != nil {
		return nil, err
	}
	f.queries = append(f.queries, q)

	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	var result []types.Log
	for i := len(f.logs) - 1; i >= 0; i-- {
		log := f.logs[i]
		if log.BlockNumber < from || log.BlockNumber > to {
			continue
		}
		if len(q.Addresses) > 0 && !containsAddress(q.Addresses, log.Address) {
			continue
		}
		if len(q.Topics) > 0 && len(q.Topics[0]) > 0 && !containsHash(q.Topics[0], log.Topics[0]) {
			continue
		}
		result = append(result, log)
	}

	return result, nil
}

func containsAddress(addresses []common.Address, address common.Address) bool {
	for _, a := range addresses {
		if a == address {
			return true
		}
	}
	return false
}

func containsHash(hashes []common.Hash, hash common.Hash) bool {
	for _, h := range hashes {
		if h == hash {
			return true
		}
	}
	return false
}

func newTestStore(t *testing.T) *database.Store {
	t.Helper()

	db, err := database.ConnectTestDB(context.Background())
	require.NoError(t, err)

	return database.NewStore(db)
}

func newTestIndexer(t *testing.T, ledger LedgerClient, params config.IndexerConfig) (*Indexer, *database.Store) {
	t.Helper()

	store := newTestStore(t)
	checkpoints := database.NewCheckpointStore(store.DB(), config.CheckpointKey)

	return New(ledger, checkpoints, NewPipeline(ledger, store, testContracts, params), params), store
}

func lower(address common.Address) string {
	return strings.ToLower(address.Hex())
}

func identityLog(name string, account common.Address, block uint64, index uint) types.Log {
	return indexer_testing.MustBuildLog(abi.IdentityRegistry, name, registryAddress, indexer_testing.At(block, index), account)
}

func purchaseLog(buyer common.Address, amount, cost int64, block uint64, index uint) types.Log {
	return indexer_testing.MustBuildLog(
		abi.TokenSale, abi.EventTokensPurchased, saleAddress, indexer_testing.At(block, index),
		buyer, big.NewInt(amount), big.NewInt(cost),
	)
}

func listingCreatedLog(id int64, seller common.Address, amount, price int64, block uint64, index uint) types.Log {
	return indexer_testing.MustBuildLog(
		abi.Marketplace, abi.EventListingCreated, marketplaceAddress, indexer_testing.At(block, index),
		big.NewInt(id), seller, tokenAddress, big.NewInt(amount), big.NewInt(price),
	)
}

func listingSoldLog(id int64, buyer common.Address, amount, total int64, block uint64, index uint) types.Log {
	return indexer_testing.MustBuildLog(
		abi.Marketplace, abi.EventListingSold, marketplaceAddress, indexer_testing.At(block, index),
		big.NewInt(id), buyer, big.NewInt(amount), big.NewInt(total),
	)
}

func listingCancelledLog(id int64, block uint64, index uint) types.Log {
	return indexer_testing.MustBuildLog(
		abi.Marketplace, abi.EventListingCancelled, marketplaceAddress, indexer_testing.At(block, index),
		big.NewInt(id),
	)
}

func swapLog(name string, user common.Address, in, out int64, block uint64, index uint) types.Log {
	return indexer_testing.MustBuildLog(
		abi.SwapPool, name, poolAddress, indexer_testing.At(block, index),
		user, big.NewInt(in), big.NewInt(out),
	)
}

func priceLog(price int64, block uint64, index uint) types.Log {
	return indexer_testing.MustBuildLog(
		abi.PriceOracle, abi.EventPriceUpdated, oracleAddress, indexer_testing.At(block, index),
		tokenAddress, big.NewInt(price), big.NewInt(9500), new(big.Int).SetUint64(indexer_testing.BlockTimestamp(block)),
	)
}

// marketLogs covers every event kind across blocks 2 to 10.
func marketLogs() []types.Log {
	return []types.Log{
		identityLog(abi.EventWhitelisted, alice, 2, 0),
		identityLog(abi.EventBlacklisted, alice, 3, 0),
		identityLog(abi.EventWhitelisted, bob, 3, 1),
		purchaseLog(bob, 5, 5000, 4, 0),
		listingCreatedLog(7, bob, 10, 100, 5, 0),
		listingCreatedLog(8, bob, 3, 50, 5, 1),
		listingSoldLog(7, carol, 10, 1000, 6, 0),
		listingCancelledLog(8, 7, 0),
		swapLog(abi.EventSwapETHForToken, carol, 1000, 5, 8, 0),
		swapLog(abi.EventSwapTokenForETH, carol, 5, 900, 9, 0),
		priceLog(100, 10, 0),
		priceLog(101, 10, 1),
	}
}

// projection is every indexer-owned row with storage-time fields cleared.
type projection struct {
	Users        []database.User
	Transactions []database.Transaction
	Listings     []database.Listing
	Prices       []database.OraclePrice
}

func loadProjection(t *testing.T, store *database.Store) projection {
	t.Helper()
	ctx := context.Background()

	users, err := store.Users(ctx)
	require.NoError(t, err)
	for i := range users {
		users[i].ID = 0
		if users[i].KYCTimestamp != nil {
			at := users[i].KYCTimestamp.UTC()
			users[i].KYCTimestamp = &at
		}
	}

	transactions, err := store.Transactions(ctx)
	require.NoError(t, err)

	listings, err := store.Listings(ctx)
	require.NoError(t, err)
	for i := range listings {
		listings[i].ID = 0
	}

	prices, err := store.Prices(ctx, lower(tokenAddress))
	require.NoError(t, err)
	for i := range prices {
		prices[i].ID = 0
		prices[i].CreatedAt = time.Time{}
	}

	return projection{Users: users, Transactions: transactions, Listings: listings, Prices: prices}
}

// String renders the projection one row per line, without surrogate ids
// and tx hashes.
func (p projection) String() string {
	var lines []string
	for _, u := range p.Users {
		kyc := "-"
		if u.KYCTimestamp != nil {
			kyc = strconv.FormatInt(u.KYCTimestamp.Unix(), 10)
		}
		lines = append(lines, fmt.Sprintf("user %s whitelisted=%t blacklisted=%t kyc=%s block=%d",
			u.WalletAddress, u.IsWhitelisted, u.IsBlacklisted, kyc, u.UpdatedBlock))
	}
	for _, tx := range p.Transactions {
		lines = append(lines, fmt.Sprintf("tx %s %s tokens=%d from=%s to=%s total=%s at=%d:%d %s",
			tx.Type, tx.Direction, tx.Tokens, tx.CounterpartyFrom, tx.CounterpartyTo, tx.TotalAmountWei,
			tx.BlockNumber, tx.LogIndex, tx.Status))
	}
	for _, l := range p.Listings {
		lines = append(lines, fmt.Sprintf("listing %s seller=%s token=%s amount=%s price=%s active=%t blocks=%d-%d",
			l.ListingIDOnchain, l.Seller, l.TokenAddress, l.Amount, l.PricePerTokenWei, l.Active,
			l.CreatedBlock, l.UpdatedBlock))
	}
	for _, price := range p.Prices {
		lines = append(lines, fmt.Sprintf("price %s %s confidence=%d %s at=%d:%d",
			price.TokenAddress, price.PriceWei, price.Confidence, price.Source, price.BlockNumber, price.LogIndex))
	}

	return strings.Join(lines, "\n")
}
