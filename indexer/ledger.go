package indexer

import (
	"context"

	"rwa-market-indexer/config"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

// LedgerClient is the read side of the ledger the extractors need.
// chain.Client implements it.
type LedgerClient interface {
	CurrentHeight(ctx context.Context) (uint64, error)
	BlockTimestamp(ctx context.Context, number uint64) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

func fetchCurrentHeight(ctx context.Context, ledger LedgerClient) (uint64, error) {
	ctx, cancelFunc := context.WithTimeout(ctx, config.Timeout)
	defer cancelFunc()

	height, err := ledger.CurrentHeight(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "ledger.CurrentHeight")
	}

	return height, nil
}

// blockTimes caches header timestamps for the duration of one Process call.
type blockTimes struct {
	ledger LedgerClient
	times  map[uint64]uint64
}

func newBlockTimes(ledger LedgerClient) *blockTimes {
	return &blockTimes{ledger: ledger, times: make(map[uint64]uint64)}
}

func (b *blockTimes) get(ctx context.Context, number uint64) (uint64, error) {
	if t, ok := b.times[number]; ok {
		return t, nil
	}

	ctx, cancelFunc := context.WithTimeout(ctx, config.Timeout)
	defer cancelFunc()

	t, err := b.ledger.BlockTimestamp(ctx, number)
	if err != nil {
		return 0, errors.Wrapf(err, "ledger.BlockTimestamp %d", number)
	}
	b.times[number] = t

	return t, nil
}
