package indexer

import (
	"context"
	"math/big"
	"sort"
	"strings"

	"rwa-market-indexer/config"
	"rwa-market-indexer/indexer/abi"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

// logSource is one contract and the events read from it.
type logSource struct {
	ledger   LedgerClient
	address  common.Address
	events   []string
	logRange uint64
}

// fetch returns the decoded events of [from, to] in ledger order, ascending
// by block number and then log index. A log that does not decode fails the
// whole fetch.
func (s logSource) fetch(ctx context.Context, from, to uint64) ([]abi.Event, error) {
	var logs []types.Log
	topics := [][]common.Hash{abi.Topics(s.events...)}

	step := s.logRange
	if step == 0 {
		step = to - from + 1
	}

	for i := from; i <= to; i += step {
		toBlock := min(i+step-1, to)

		query := ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(i),
			ToBlock:   new(big.Int).SetUint64(toBlock),
			Addresses: []common.Address{s.address},
			Topics:    topics,
		}

		chunk, err := s.filterLogs(ctx, query)
		if err != nil {
			return nil, errors.Wrapf(err, "FilterLogs %d-%d", i, toBlock)
		}
		logs = append(logs, chunk...)

		// i += step would wrap at the top of the range
		if toBlock == to {
			break
		}
	}

	sort.SliceStable(logs, func(i, j int) bool {
		if logs[i].BlockNumber != logs[j].BlockNumber {
			return logs[i].BlockNumber < logs[j].BlockNumber
		}
		return logs[i].Index < logs[j].Index
	})

	events := make([]abi.Event, 0, len(logs))
	for i := range logs {
		if logs[i].Removed {
			continue
		}

		event, err := abi.Decode(&logs[i])
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	return events, nil
}

func (s logSource) filterLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	ctx, cancelFunc := context.WithTimeout(ctx, config.Timeout)
	defer cancelFunc()

	return s.ledger.FilterLogs(ctx, query)
}

func normalizeAddress(address common.Address) string {
	return strings.ToLower(address.Hex())
}

// transactionID is tag followed by the first length hex digits of hash.
func transactionID(tag string, hash common.Hash, length int) string {
	digits := hash.Hex()[2:]
	if length > 0 && length < len(digits) {
		digits = digits[:length]
	}

	return tag + digits
}

func tokenAmount(amount *big.Int) (int64, error) {
	if !amount.IsInt64() {
		return 0, errors.Wrapf(abi.ErrMalformedEvent, "token amount %s out of range", amount)
	}

	return amount.Int64(), nil
}
