package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/url"

	"rwa-market-indexer/config"

	avxClient "github.com/ava-labs/coreth/ethclient"
	"github.com/ava-labs/coreth/interfaces"
	"github.com/ethereum/go-ethereum"
	ethClient "github.com/ethereum/go-ethereum/ethclient"

	avxTypes "github.com/ava-labs/coreth/core/types"
	ethTypes "github.com/ethereum/go-ethereum/core/types"
)

var (
	ErrInvalidChain   = errors.New("invalid chain")
	ErrHeaderMismatch = errors.New("header does not match requested block")
)

// ChainType is an internal type used to differentiate between different
// types of EVM-compatible chains.
type ChainType int

const (
	ChainTypeAvax ChainType = iota + 1 // Add 1 to skip 0 - avoids the zero value defaulting to Avax
	ChainTypeEth
)

func ChainTypeFromString(name string) (ChainType, error) {
	switch name {
	case config.ChainTypeAvax:
		return ChainTypeAvax, nil
	case config.ChainTypeEth:
		return ChainTypeEth, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidChain, name)
	}
}

// Client is the read side of the ledger used by the indexer.
type Client struct {
	chain ChainType
	eth   *ethClient.Client
	avx   avxClient.Client
}

type Header struct {
	chain ChainType
	eth   *ethTypes.Header
	avx   *avxTypes.Header
}

func DialRPCNode(nodeURL *url.URL, chainType ChainType) (*Client, error) {
	c := &Client{chain: chainType}
	var err error

	switch c.chain {
	case ChainTypeAvax:
		c.avx, err = avxClient.Dial(nodeURL.String())
	case ChainTypeEth:
		c.eth, err = ethClient.Dial(nodeURL.String())
	default:
		return nil, ErrInvalidChain
	}

	return c, err
}

// Dial reads the node address and chain type from the chain config.
func Dial(cfg config.ChainConfig) (*Client, error) {
	chainType, err := ChainTypeFromString(cfg.ChainType)
	if err != nil {
		return nil, err
	}

	nodeURL, err := cfg.FullNodeURL()
	if err != nil {
		return nil, err
	}

	return DialRPCNode(nodeURL, chainType)
}

func (c *Client) Close() {
	switch c.chain {
	case ChainTypeAvax:
		c.avx.Close()
	case ChainTypeEth:
		c.eth.Close()
	}
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	switch c.chain {
	case ChainTypeAvax:
		return c.avx.ChainID(ctx)
	case ChainTypeEth:
		return c.eth.ChainID(ctx)
	default:
		return nil, ErrInvalidChain
	}
}

func (c *Client) CurrentHeight(ctx context.Context) (uint64, error) {
	switch c.chain {
	case ChainTypeAvax:
		return c.avx.BlockNumber(ctx)
	case ChainTypeEth:
		return c.eth.BlockNumber(ctx)
	default:
		return 0, ErrInvalidChain
	}
}

func (c *Client) HeaderByNumber(ctx context.Context, number *big.Int) (*Header, error) {
	header := &Header{chain: c.chain}
	var err error
	switch c.chain {
	case ChainTypeAvax:
		header.avx, err = c.avx.HeaderByNumber(ctx, number)
	case ChainTypeEth:
		header.eth, err = c.eth.HeaderByNumber(ctx, number)
	default:
		return nil, ErrInvalidChain
	}

	return header, err
}

// BlockTimestamp returns the header time of block number, in unix seconds.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	header, err := c.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}
	if err := header.checkNumber(number); err != nil {
		return 0, err
	}

	return header.Time(), nil
}

// FilterLogs returns go-ethereum logs regardless of the chain type.
func (c *Client) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethTypes.Log, error) {
	switch c.chain {
	case ChainTypeAvax:
		avxLogs, err := c.avx.FilterLogs(ctx, interfaces.FilterQuery(q))
		if err != nil {
			return nil, err
		}
		logs := make([]ethTypes.Log, len(avxLogs))
		for i, e := range avxLogs {
			logs[i] = ethTypes.Log(e)
		}
		return logs, nil
	case ChainTypeEth:
		return c.eth.FilterLogs(ctx, q)
	default:
		return nil, ErrInvalidChain
	}
}

func (h *Header) Number() *big.Int {
	switch h.chain {
	case ChainTypeAvax:
		return h.avx.Number
	case ChainTypeEth:
		return h.eth.Number
	default:
		return nil
	}
}

func (h *Header) checkNumber(number uint64) error {
	n := h.Number()
	if n == nil || !n.IsUint64() || n.Uint64() != number {
		return fmt.Errorf("block %d: got header %v: %w", number, n, ErrHeaderMismatch)
	}

	return nil
}

func (h *Header) Time() uint64 {
	switch h.chain {
	case ChainTypeAvax:
		return h.avx.Time
	case ChainTypeEth:
		return h.eth.Time
	default:
		return 0
	}
}
