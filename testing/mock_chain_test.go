package testing

import (
	"context"
	"math/big"
	"testing"

	"rwa-market-indexer/indexer/abi"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/require"
)

func TestMockChain(t *testing.T) {
	ctx := context.Background()
	registry := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	account := common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	mockChain := NewMockChain(10)
	mockChain.AddLogs(
		MustBuildLog(abi.IdentityRegistry, abi.EventWhitelisted, registry, At(3, 0), account),
		MustBuildLog(abi.IdentityRegistry, abi.EventBlacklisted, registry, At(7, 1), account),
	)

	url, err := mockChain.Start()
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, mockChain.Stop()) })

	client, err := ethclient.Dial(url)
	require.NoError(t, err)

	height, err := client.BlockNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(10), height)

	header, err := client.HeaderByNumber(ctx, big.NewInt(4))
	require.NoError(t, err)
	require.Equal(t, BlockTimestamp(4), header.Time)

	logs, err := client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: big.NewInt(1),
		ToBlock:   big.NewInt(5),
		Addresses: []common.Address{registry},
		Topics:    [][]common.Hash{abi.Topics(abi.EventWhitelisted, abi.EventBlacklisted)},
	})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	require.Equal(t, uint64(3), logs[0].BlockNumber)

	mockChain.FailNext("eth_blockNumber", 1)
	_, err = client.BlockNumber(ctx)
	require.Error(t, err)
	_, err = client.BlockNumber(ctx)
	require.NoError(t, err)
}
