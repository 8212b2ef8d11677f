package oracle

import (
	"context"
	"math/big"
	"math/rand/v2"
	"strings"
	"sync/atomic"
	"time"

	"rwa-market-indexer/config"
	"rwa-market-indexer/database"
	"rwa-market-indexer/indexer/abi"
	"rwa-market-indexer/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

const (
	bpsDenominator = 10000
	// maxDeviationBps bounds the perturbation of the base price to 5%.
	maxDeviationBps = 500
)

var ErrIncompleteReceipt = errors.New("receipt has no block number")

// Submitter writes a price update to the ledger and waits for it to be
// mined. chain.PriceTransactor implements it.
type Submitter interface {
	Submit(ctx context.Context, token common.Address, price *big.Int, confidence *big.Int) (*types.Transaction, error)
	WaitConfirmed(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

type PriceRecorder interface {
	InsertPrice(ctx context.Context, price *database.OraclePrice) (bool, error)
}

// PushLoop submits a synthetic price on every tick and mirrors confirmed
// updates into the price series with source oracle_push.
type PushLoop struct {
	submitter  Submitter
	recorder   PriceRecorder
	token      common.Address
	basePrice  *big.Int
	confidence *big.Int
	rng        *rand.Rand
	state      atomic.Int32
}

// NewPushLoop seeds its own generator when rng is nil.
func NewPushLoop(submitter Submitter, recorder PriceRecorder, cfg config.OracleConfig, rng *rand.Rand) (*PushLoop, error) {
	basePrice, err := cfg.BasePrice()
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(cfg.TokenAddress) {
		return nil, errors.Errorf("oracle.token_address: invalid address %q", cfg.TokenAddress)
	}
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}

	return &PushLoop{
		submitter:  submitter,
		recorder:   recorder,
		token:      common.HexToAddress(cfg.TokenAddress),
		basePrice:  basePrice,
		confidence: new(big.Int).SetUint64(cfg.ConfidenceBps),
		rng:        rng,
	}, nil
}

// State is StateFailed after a failed tick until the next tick starts.
func (p *PushLoop) State() State {
	return State(p.state.Load())
}

func (p *PushLoop) setState(s State) {
	p.state.Store(int32(s))
}

// PerturbedPrice returns base * (10000 + r) / 10000.
func PerturbedPrice(base *big.Int, r int64) *big.Int {
	price := new(big.Int).Mul(base, big.NewInt(bpsDenominator+r))
	return price.Quo(price, big.NewInt(bpsDenominator))
}

func (p *PushLoop) nextPrice() *big.Int {
	r := p.rng.Int64N(2*maxDeviationBps+1) - maxDeviationBps
	return PerturbedPrice(p.basePrice, r)
}

// Tick runs one Idle, Submitting, Confirming, Recording cycle. Any failure
// ends the tick in StateFailed; nothing is retried within the tick.
func (p *PushLoop) Tick(ctx context.Context) error {
	p.setState(StateIdle)

	err := p.push(ctx)
	if err != nil {
		logger.Error("Oracle push failed in state %s: %s", p.State(), err)
		p.setState(StateFailed)
		return err
	}

	p.setState(StateIdle)
	return nil
}

func (p *PushLoop) push(ctx context.Context) error {
	price := p.nextPrice()

	p.setState(StateSubmitting)
	tx, err := p.submitter.Submit(ctx, p.token, price, p.confidence)
	if err != nil {
		return errors.Wrap(err, "Submit")
	}

	p.setState(StateConfirming)
	receipt, err := p.submitter.WaitConfirmed(ctx, tx)
	if err != nil {
		return errors.Wrap(err, "WaitConfirmed")
	}
	if receipt == nil || receipt.BlockNumber == nil {
		return errors.Wrapf(ErrIncompleteReceipt, "tx %s", tx.Hash().Hex())
	}

	p.setState(StateRecording)
	_, err = p.recorder.InsertPrice(ctx, &database.OraclePrice{
		TokenAddress: strings.ToLower(p.token.Hex()),
		PriceWei:     price.String(),
		Confidence:   p.confidence.Uint64(),
		BlockNumber:  receipt.BlockNumber.Uint64(),
		Source:       database.PriceSourcePush,
		TxHash:       tx.Hash().Hex(),
		LogIndex:     priceLogIndex(receipt),
	})
	if err != nil {
		return errors.Wrap(err, "InsertPrice")
	}

	logger.Info("Pushed price %s for %s in block %d", price, p.token.Hex(), receipt.BlockNumber)

	return nil
}

// priceLogIndex is the index of the PriceUpdated log in receipt, or 0.
func priceLogIndex(receipt *types.Receipt) uint64 {
	topic := abi.Topic(abi.EventPriceUpdated)
	for _, log := range receipt.Logs {
		if len(log.Topics) > 0 && log.Topics[0] == topic {
			return uint64(log.Index)
		}
	}

	return 0
}
