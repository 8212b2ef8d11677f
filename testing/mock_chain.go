package testing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"sync"
	"time"

	"rwa-market-indexer/indexer/abi"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/gorilla/mux"
)

const (
	MockChainID          = 1337
	MockGenesisTimestamp = 1_700_000_000
	MockBlockTime        = 2
)

// MockChain is an in-process JSON-RPC node serving the subset of the eth
// namespace used by the indexer and the oracle transactor. Every accepted
// raw transaction is mined into a new block immediately.
type MockChain struct {
	mu        sync.RWMutex
	height    uint64
	logs      []types.Log
	failures  map[string]int
	receipts  map[common.Hash]*types.Receipt
	nonces    map[common.Address]uint64
	revertTxs bool
	calls     map[string]int

	server   *http.Server
	listener net.Listener
}

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result"`
	Error   *rpcError       `json:"error,omitempty"`
}

type filterArg struct {
	FromBlock *hexutil.Big     `json:"fromBlock"`
	ToBlock   *hexutil.Big     `json:"toBlock"`
	Address   []common.Address `json:"address"`
	Topics    [][]common.Hash  `json:"topics"`
}

func NewMockChain(height uint64) *MockChain {
	return &MockChain{
		height:   height,
		failures: make(map[string]int),
		receipts: make(map[common.Hash]*types.Receipt),
		nonces:   make(map[common.Address]uint64),
		calls:    make(map[string]int),
	}
}

func BlockTimestamp(number uint64) uint64 {
	return MockGenesisTimestamp + number*MockBlockTime
}

func (m *MockChain) AddLogs(logs ...types.Log) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, log := range logs {
		m.height = max(m.height, log.BlockNumber)
	}
	m.logs = append(m.logs, logs...)
}

func (m *MockChain) SetHeight(height uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.height = height
}

func (m *MockChain) Height() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.height
}

// FailNext makes the next n calls of method return an RPC error.
func (m *MockChain) FailNext(method string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failures[method] = n
}

// RevertTransactions makes subsequently mined transactions fail.
func (m *MockChain) RevertTransactions(revert bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.revertTxs = revert
}

func (m *MockChain) Calls(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.calls[method]
}

func (m *MockChain) Start() (string, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}

	r := mux.NewRouter()
	r.HandleFunc("/", m.handle).Methods(http.MethodPost)

	m.listener = listener
	m.server = &http.Server{
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		Handler:      r,
	}

	go func() {
		if err := m.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("Mock chain error: %v\n", err)
		}
	}()

	return "http://" + listener.Addr().String(), nil
}

func (m *MockChain) Stop() error {
	if m.server == nil {
		return nil
	}

	return m.server.Close()
}

func (m *MockChain) handle(writer http.ResponseWriter, request *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(request.Body).Decode(&req); err != nil {
		http.Error(writer, "Invalid json", http.StatusBadRequest)
		return
	}

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	result, err := m.dispatch(req)
	if err != nil {
		resp.Error = &rpcError{Code: -32000, Message: err.Error()}
	} else {
		resp.Result = result
	}

	writer.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(writer).Encode(resp); err != nil {
		fmt.Printf("Error returning response: %v\n", err)
	}
}

func (m *MockChain) dispatch(req rpcRequest) (interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[req.Method]++
	if m.failures[req.Method] > 0 {
		m.failures[req.Method]--
		return nil, fmt.Errorf("injected failure for %s", req.Method)
	}

	switch req.Method {
	case "eth_chainId":
		return (*hexutil.Big)(big.NewInt(MockChainID)), nil
	case "eth_blockNumber":
		return hexutil.Uint64(m.height), nil
	case "eth_getBlockByNumber":
		return m.headerByNumber(req.Params)
	case "eth_getLogs":
		return m.filterLogs(req.Params)
	case "eth_gasPrice":
		return (*hexutil.Big)(big.NewInt(1_000_000_000)), nil
	case "eth_estimateGas":
		return hexutil.Uint64(100_000), nil
	case "eth_getCode":
		return hexutil.Bytes{0x60, 0x01}, nil
	case "eth_getTransactionCount":
		return m.transactionCount(req.Params)
	case "eth_sendRawTransaction":
		return m.sendRawTransaction(req.Params)
	case "eth_getTransactionReceipt":
		return m.transactionReceipt(req.Params)
	default:
		return nil, fmt.Errorf("method %s not supported", req.Method)
	}
}

func (m *MockChain) headerByNumber(params []json.RawMessage) (interface{}, error) {
	if len(params) == 0 {
		return nil, errors.New("missing block number")
	}

	var tag string
	if err := json.Unmarshal(params[0], &tag); err != nil {
		return nil, err
	}

	number := m.height
	if tag != "latest" && tag != "pending" && tag != "finalized" && tag != "safe" {
		parsed, err := hexutil.DecodeUint64(tag)
		if err != nil {
			return nil, err
		}
		number = parsed
	}
	if number > m.height {
		return nil, nil
	}

	return &types.Header{
		ParentHash: common.BigToHash(new(big.Int).SetUint64(number)),
		Difficulty: big.NewInt(0),
		Number:     new(big.Int).SetUint64(number),
		GasLimit:   30_000_000,
		Time:       BlockTimestamp(number),
		Extra:      []byte{},
	}, nil
}

func (m *MockChain) filterLogs(params []json.RawMessage) (interface{}, error) {
	if len(params) == 0 {
		return nil, errors.New("missing filter")
	}

	var filter filterArg
	if err := json.Unmarshal(params[0], &filter); err != nil {
		return nil, err
	}

	from, to := uint64(0), m.height
	if filter.FromBlock != nil {
		from = filter.FromBlock.ToInt().Uint64()
	}
	if filter.ToBlock != nil {
		to = filter.ToBlock.ToInt().Uint64()
	}

	logs := make([]types.Log, 0)
	for _, log := range m.logs {
		if log.BlockNumber < from || log.BlockNumber > to {
			continue
		}
		if len(filter.Address) > 0 && !containsAddress(filter.Address, log.Address) {
			continue
		}
		if !matchTopics(filter.Topics, log.Topics) {
			continue
		}
		logs = append(logs, log)
	}

	return logs, nil
}

func (m *MockChain) transactionCount(params []json.RawMessage) (interface{}, error) {
	if len(params) == 0 {
		return nil, errors.New("missing account")
	}

	var account common.Address
	if err := json.Unmarshal(params[0], &account); err != nil {
		return nil, err
	}

	return hexutil.Uint64(m.nonces[account]), nil
}

func (m *MockChain) sendRawTransaction(params []json.RawMessage) (interface{}, error) {
	if len(params) == 0 {
		return nil, errors.New("missing transaction")
	}

	var raw hexutil.Bytes
	if err := json.Unmarshal(params[0], &raw); err != nil {
		return nil, err
	}

	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, err
	}

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(MockChainID)), tx)
	if err != nil {
		return nil, err
	}
	m.nonces[sender]++

	m.height++
	receipt := &types.Receipt{
		Type:              tx.Type(),
		Status:            types.ReceiptStatusSuccessful,
		CumulativeGasUsed: 50_000,
		TxHash:            tx.Hash(),
		GasUsed:           50_000,
		EffectiveGasPrice: tx.GasPrice(),
		BlockHash:         common.BigToHash(new(big.Int).SetUint64(m.height)),
		BlockNumber:       new(big.Int).SetUint64(m.height),
		Logs:              []*types.Log{},
	}

	if m.revertTxs {
		receipt.Status = types.ReceiptStatusFailed
	} else if log, ok := priceUpdatedLog(tx, m.height); ok {
		m.logs = append(m.logs, log)
		receipt.Logs = append(receipt.Logs, &log)
	}
	m.receipts[tx.Hash()] = receipt

	return tx.Hash(), nil
}

func (m *MockChain) transactionReceipt(params []json.RawMessage) (interface{}, error) {
	if len(params) == 0 {
		return nil, errors.New("missing transaction hash")
	}

	var hash common.Hash
	if err := json.Unmarshal(params[0], &hash); err != nil {
		return nil, err
	}

	receipt, ok := m.receipts[hash]
	if !ok {
		return nil, nil
	}

	return receipt, nil
}

// priceUpdatedLog emits the event an oracle contract would for an updatePrice call.
func priceUpdatedLog(tx *types.Transaction, block uint64) (types.Log, bool) {
	method, ok := abi.PriceOracle.Methods[abi.MethodUpdatePrice]
	if !ok || tx.To() == nil || len(tx.Data()) < 4 || !bytes.Equal(tx.Data()[:4], method.ID) {
		return types.Log{}, false
	}

	args, err := method.Inputs.Unpack(tx.Data()[4:])
	if err != nil || len(args) != 3 {
		return types.Log{}, false
	}

	log, err := BuildLog(
		abi.PriceOracle, abi.EventPriceUpdated, *tx.To(),
		LogPosition{Block: block, Index: 0, TxHash: tx.Hash()},
		args[0], args[1], args[2], new(big.Int).SetUint64(BlockTimestamp(block)),
	)
	if err != nil {
		return types.Log{}, false
	}

	return log, true
}

func containsAddress(addresses []common.Address, address common.Address) bool {
	for _, a := range addresses {
		if a == address {
			return true
		}
	}

	return false
}

func matchTopics(filter [][]common.Hash, topics []common.Hash) bool {
	for i, alternatives := range filter {
		if len(alternatives) == 0 {
			continue
		}
		if i >= len(topics) {
			return false
		}

		matched := false
		for _, topic := range alternatives {
			if topic == topics[i] {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	return true
}
