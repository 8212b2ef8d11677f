package abi

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
)

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrMalformedEvent = errors.New("malformed event")
)

// Meta locates a decoded event on the ledger.
type Meta struct {
	Contract    common.Address
	TxHash      common.Hash
	BlockNumber uint64
	LogIndex    uint
}

func (m Meta) Metadata() Meta {
	return m
}

// Event is implemented by every typed ledger event below.
type Event interface {
	Name() string
	Metadata() Meta
}

type Whitelisted struct {
	Meta
	Account common.Address
}

type Blacklisted struct {
	Meta
	Account common.Address
}

type RemovedFromWhitelist struct {
	Meta
	Account common.Address
}

type RemovedFromBlacklist struct {
	Meta
	Account common.Address
}

type TokensPurchased struct {
	Meta
	Buyer     common.Address
	Amount    *big.Int
	TotalCost *big.Int
}

type ListingCreated struct {
	Meta
	ListingID     *big.Int
	Seller        common.Address
	Token         common.Address
	Amount        *big.Int
	PricePerToken *big.Int
}

type ListingSold struct {
	Meta
	ListingID  *big.Int
	Buyer      common.Address
	Amount     *big.Int
	TotalPrice *big.Int
}

type ListingCancelled struct {
	Meta
	ListingID *big.Int
}

type SwapETHForToken struct {
	Meta
	User     common.Address
	EthIn    *big.Int
	TokenOut *big.Int
}

type SwapTokenForETH struct {
	Meta
	User    common.Address
	TokenIn *big.Int
	EthOut  *big.Int
}

type PriceUpdated struct {
	Meta
	Token      common.Address
	Price      *big.Int
	Confidence *big.Int
	Timestamp  *big.Int
}

func (Whitelisted) Name() string          { return EventWhitelisted }
func (Blacklisted) Name() string          { return EventBlacklisted }
func (RemovedFromWhitelist) Name() string { return EventRemovedFromWhitelist }
func (RemovedFromBlacklist) Name() string { return EventRemovedFromBlacklist }
func (TokensPurchased) Name() string      { return EventTokensPurchased }
func (ListingCreated) Name() string       { return EventListingCreated }
func (ListingSold) Name() string          { return EventListingSold }
func (ListingCancelled) Name() string     { return EventListingCancelled }
func (SwapETHForToken) Name() string      { return EventSwapETHForToken }
func (SwapTokenForETH) Name() string      { return EventSwapTokenForETH }
func (PriceUpdated) Name() string         { return EventPriceUpdated }

// Decode turns a raw log into its typed event. Logs whose topic0 is not a
// registered event give ErrUnknownEvent; logs that do not match the
// registered layout give ErrMalformedEvent.
func Decode(log *types.Log) (Event, error) {
	if len(log.Topics) == 0 {
		return nil, errors.Wrapf(ErrMalformedEvent, "log %s:%d has no topics", log.TxHash.Hex(), log.Index)
	}

	spec, ok := eventsByTopic[log.Topics[0]]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownEvent, "topic %s", log.Topics[0].Hex())
	}

	f := make(fields)
	if err := spec.event.Inputs.UnpackIntoMap(f, log.Data); err != nil {
		return nil, errors.Wrapf(ErrMalformedEvent, "%s data: %s", spec.event.Name, err)
	}

	if err := abi.ParseTopicsIntoMap(f, spec.indexed, log.Topics[1:]); err != nil {
		return nil, errors.Wrapf(ErrMalformedEvent, "%s topics: %s", spec.event.Name, err)
	}

	meta := Meta{
		Contract:    log.Address,
		TxHash:      log.TxHash,
		BlockNumber: log.BlockNumber,
		LogIndex:    log.Index,
	}

	event, err := spec.decode(meta, f)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedEvent, "%s: %s", spec.event.Name, err)
	}

	return event, nil
}

type fields map[string]interface{}

func (f fields) address(name string) (common.Address, error) {
	value, ok := f[name]
	if !ok {
		return common.Address{}, errors.Errorf("input %s not found", name)
	}

	address, ok := value.(common.Address)
	if !ok {
		return common.Address{}, errors.Errorf("input %s not correctly formed", name)
	}

	return address, nil
}

func (f fields) bigInt(name string) (*big.Int, error) {
	value, ok := f[name]
	if !ok {
		return nil, errors.Errorf("input %s not found", name)
	}

	number, ok := value.(*big.Int)
	if !ok || number == nil {
		return nil, errors.Errorf("input %s not correctly formed", name)
	}

	return number, nil
}

func decodeWhitelisted(meta Meta, f fields) (Event, error) {
	account, err := f.address("account")
	if err != nil {
		return nil, err
	}

	return Whitelisted{Meta: meta, Account: account}, nil
}

func decodeBlacklisted(meta Meta, f fields) (Event, error) {
	account, err := f.address("account")
	if err != nil {
		return nil, err
	}

	return Blacklisted{Meta: meta, Account: account}, nil
}

func decodeRemovedFromWhitelist(meta Meta, f fields) (Event, error) {
	account, err := f.address("account")
	if err != nil {
		return nil, err
	}

	return RemovedFromWhitelist{Meta: meta, Account: account}, nil
}

func decodeRemovedFromBlacklist(meta Meta, f fields) (Event, error) {
	account, err := f.address("account")
	if err != nil {
		return nil, err
	}

	return RemovedFromBlacklist{Meta: meta, Account: account}, nil
}

func decodeTokensPurchased(meta Meta, f fields) (Event, error) {
	buyer, err := f.address("buyer")
	if err != nil {
		return nil, err
	}
	amount, err := f.bigInt("amount")
	if err != nil {
		return nil, err
	}
	totalCost, err := f.bigInt("totalCost")
	if err != nil {
		return nil, err
	}

	return TokensPurchased{Meta: meta, Buyer: buyer, Amount: amount, TotalCost: totalCost}, nil
}

func decodeListingCreated(meta Meta, f fields) (Event, error) {
	listingID, err := f.bigInt("listingId")
	if err != nil {
		return nil, err
	}
	seller, err := f.address("seller")
	if err != nil {
		return nil, err
	}
	token, err := f.address("token")
	if err != nil {
		return nil, err
	}
	amount, err := f.bigInt("amount")
	if err != nil {
		return nil, err
	}
	pricePerToken, err := f.bigInt("pricePerToken")
	if err != nil {
		return nil, err
	}

	return ListingCreated{
		Meta:          meta,
		ListingID:     listingID,
		Seller:        seller,
		Token:         token,
		Amount:        amount,
		PricePerToken: pricePerToken,
	}, nil
}

func decodeListingSold(meta Meta, f fields) (Event, error) {
	listingID, err := f.bigInt("listingId")
	if err != nil {
		return nil, err
	}
	buyer, err := f.address("buyer")
	if err != nil {
		return nil, err
	}
	amount, err := f.bigInt("amount")
	if err != nil {
		return nil, err
	}
	totalPrice, err := f.bigInt("totalPrice")
	if err != nil {
		return nil, err
	}

	return ListingSold{Meta: meta, ListingID: listingID, Buyer: buyer, Amount: amount, TotalPrice: totalPrice}, nil
}

func decodeListingCancelled(meta Meta, f fields) (Event, error) {
	listingID, err := f.bigInt("listingId")
	if err != nil {
		return nil, err
	}

	return ListingCancelled{Meta: meta, ListingID: listingID}, nil
}

func decodeSwapETHForToken(meta Meta, f fields) (Event, error) {
	user, err := f.address("user")
	if err != nil {
		return nil, err
	}
	ethIn, err := f.bigInt("ethIn")
	if err != nil {
		return nil, err
	}
	tokenOut, err := f.bigInt("tokenOut")
	if err != nil {
		return nil, err
	}

	return SwapETHForToken{Meta: meta, User: user, EthIn: ethIn, TokenOut: tokenOut}, nil
}

func decodeSwapTokenForETH(meta Meta, f fields) (Event, error) {
	user, err := f.address("user")
	if err != nil {
		return nil, err
	}
	tokenIn, err := f.bigInt("tokenIn")
	if err != nil {
		return nil, err
	}
	ethOut, err := f.bigInt("ethOut")
	if err != nil {
		return nil, err
	}

	return SwapTokenForETH{Meta: meta, User: user, TokenIn: tokenIn, EthOut: ethOut}, nil
}

func decodePriceUpdated(meta Meta, f fields) (Event, error) {
	token, err := f.address("token")
	if err != nil {
		return nil, err
	}
	price, err := f.bigInt("price")
	if err != nil {
		return nil, err
	}
	confidence, err := f.bigInt("confidence")
	if err != nil {
		return nil, err
	}
	timestamp, err := f.bigInt("timestamp")
	if err != nil {
		return nil, err
	}

	return PriceUpdated{Meta: meta, Token: token, Price: price, Confidence: confidence, Timestamp: timestamp}, nil
}
