package chain

import (
	"context"
	"math/big"
	"net/url"
	"strings"
	"time"

	"rwa-market-indexer/boff"
	"rwa-market-indexer/indexer/abi"
	"rwa-market-indexer/logger"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	ethClient "github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
)

var ErrTransactionReverted = errors.New("transaction reverted")

// PriceTransactor is the write side of the ledger: it signs and submits
// updatePrice calls to the price oracle contract.
type PriceTransactor struct {
	client         *ethClient.Client
	contract       *bind.BoundContract
	opts           *bind.TransactOpts
	confirmTimeout time.Duration
}

func NewPriceTransactor(
	ctx context.Context, nodeURL *url.URL, oracle common.Address, privateKey string, confirmTimeout time.Duration,
) (*PriceTransactor, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKey, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "oracle private key")
	}

	client, err := ethClient.Dial(nodeURL.String())
	if err != nil {
		return nil, errors.Wrap(err, "ethclient.Dial")
	}

	chainID, err := boff.RetryWithMaxElapsed(ctx, func() (*big.Int, error) {
		return client.ChainID(ctx)
	}, "PriceTransactor.ChainID")
	if err != nil {
		client.Close()
		return nil, errors.Wrap(err, "ChainID")
	}

	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		client.Close()
		return nil, errors.Wrap(err, "bind.NewKeyedTransactorWithChainID")
	}

	return &PriceTransactor{
		client:         client,
		contract:       bind.NewBoundContract(oracle, abi.PriceOracle, client, client, client),
		opts:           opts,
		confirmTimeout: confirmTimeout,
	}, nil
}

func (p *PriceTransactor) From() common.Address {
	return p.opts.From
}

func (p *PriceTransactor) Close() {
	p.client.Close()
}

// Submit sends updatePrice(token, price, confidence) and returns the signed
// transaction without waiting for it to be mined.
func (p *PriceTransactor) Submit(
	ctx context.Context, token common.Address, price *big.Int, confidence *big.Int,
) (*types.Transaction, error) {
	opts := *p.opts
	opts.Context = ctx

	tx, err := p.contract.Transact(&opts, abi.MethodUpdatePrice, token, price, confidence)
	if err != nil {
		return nil, errors.Wrap(err, "updatePrice")
	}

	logger.Debug("Submitted updatePrice %s price %s confidence %s", tx.Hash().Hex(), price, confidence)

	return tx, nil
}

// WaitConfirmed polls for the receipt of tx until it is mined or the confirm
// timeout elapses. A mined but reverted transaction is an error.
func (p *PriceTransactor) WaitConfirmed(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := boff.RetryFor(ctx, func() (*types.Receipt, error) {
		receipt, err := p.client.TransactionReceipt(ctx, tx.Hash())
		if err != nil {
			return nil, err
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			return nil, boff.Permanent(errors.Wrapf(ErrTransactionReverted, "%s", tx.Hash().Hex()))
		}

		return receipt, nil
	}, "TransactionReceipt", p.confirmTimeout)
	if err != nil {
		return nil, err
	}

	return receipt, nil
}
