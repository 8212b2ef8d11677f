package testing

import (
	"encoding/binary"
	"fmt"
	"math/big"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

type LogPosition struct {
	Block  uint64
	Index  uint
	TxHash common.Hash
}

// At places a log at block/index with a tx hash derived from both.
func At(block uint64, index uint) LogPosition {
	return LogPosition{
		Block:  block,
		Index:  index,
		TxHash: TxHash(block, index),
	}
}

// TxHash is a deterministic, distinct transaction hash per (block, index).
func TxHash(block uint64, index uint) common.Hash {
	var seed [16]byte
	binary.BigEndian.PutUint64(seed[:8], block)
	binary.BigEndian.PutUint64(seed[8:], uint64(index))

	return crypto.Keccak256Hash(seed[:])
}

// BuildLog encodes an event of contract exactly as a node would return it.
// values follow the order of the event inputs in the ABI.
func BuildLog(
	contract gethabi.ABI, name string, address common.Address, pos LogPosition, values ...interface{},
) (types.Log, error) {
	event, ok := contract.Events[name]
	if !ok {
		return types.Log{}, fmt.Errorf("event %s not in abi", name)
	}
	if len(values) != len(event.Inputs) {
		return types.Log{}, fmt.Errorf("event %s: expected %d values, got %d", name, len(event.Inputs), len(values))
	}

	topics := []common.Hash{event.ID}
	var nonIndexed []interface{}
	for i, input := range event.Inputs {
		if !input.Indexed {
			nonIndexed = append(nonIndexed, values[i])
			continue
		}

		topic, err := gethabi.MakeTopics([]interface{}{values[i]})
		if err != nil {
			return types.Log{}, fmt.Errorf("event %s topic %s: %w", name, input.Name, err)
		}
		topics = append(topics, topic[0][0])
	}

	data, err := event.Inputs.NonIndexed().Pack(nonIndexed...)
	if err != nil {
		return types.Log{}, fmt.Errorf("event %s data: %w", name, err)
	}

	return types.Log{
		Address:     address,
		Topics:      topics,
		Data:        data,
		BlockNumber: pos.Block,
		TxHash:      pos.TxHash,
		Index:       pos.Index,
		BlockHash:   common.BigToHash(new(big.Int).SetUint64(pos.Block)),
	}, nil
}

func MustBuildLog(
	contract gethabi.ABI, name string, address common.Address, pos LogPosition, values ...interface{},
) types.Log {
	log, err := BuildLog(contract, name, address, pos, values...)
	if err != nil {
		panic(err)
	}

	return log
}
