package indexer

import (
	"context"
	"time"

	"rwa-market-indexer/database"
	"rwa-market-indexer/indexer/abi"
	"rwa-market-indexer/logger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// Transaction id tags, one per transaction type.
const (
	purchaseIDTag    = "tx_"
	listingSoldIDTag = "sold_"
	swapIDTag        = "swap_"
)

// Extractor projects one class of ledger events for the block range
// [from, to]. Process must be safe to repeat for the same range.
type Extractor interface {
	Name() string
	Process(ctx context.Context, from, to uint64) error
}

type identityExtractor struct {
	source logSource
	store  *database.Store
}

func (e *identityExtractor) Name() string { return "identity" }

func (e *identityExtractor) Process(ctx context.Context, from, to uint64) error {
	events, err := e.source.fetch(ctx, from, to)
	if err != nil {
		return err
	}

	times := newBlockTimes(e.source.ledger)
	for _, event := range events {
		var account common.Address
		var action database.ComplianceAction
		switch ev := event.(type) {
		case abi.Whitelisted:
			account, action = ev.Account, database.ComplianceWhitelisted
		case abi.Blacklisted:
			account, action = ev.Account, database.ComplianceBlacklisted
		case abi.RemovedFromWhitelist:
			account, action = ev.Account, database.ComplianceRemovedFromWhitelist
		case abi.RemovedFromBlacklist:
			account, action = ev.Account, database.ComplianceRemovedFromBlacklist
		default:
			return errors.Wrapf(abi.ErrUnknownEvent, "identity extractor got %s", event.Name())
		}

		meta := event.Metadata()
		var at time.Time
		if action == database.ComplianceWhitelisted {
			timestamp, err := times.get(ctx, meta.BlockNumber)
			if err != nil {
				return err
			}
			at = time.Unix(int64(timestamp), 0)
		}

		err := e.store.ApplyCompliance(ctx, normalizeAddress(account), action, at, meta.BlockNumber)
		if err != nil {
			return err
		}
	}

	logger.Debug("identity: applied %d events in blocks %d-%d", len(events), from, to)

	return nil
}

type purchaseExtractor struct {
	source     logSource
	store      *database.Store
	txIDLength int
}

func (e *purchaseExtractor) Name() string { return "purchases" }

func (e *purchaseExtractor) Process(ctx context.Context, from, to uint64) error {
	events, err := e.source.fetch(ctx, from, to)
	if err != nil {
		return err
	}

	inserted := 0
	for _, event := range events {
		purchase, ok := event.(abi.TokensPurchased)
		if !ok {
			return errors.Wrapf(abi.ErrUnknownEvent, "purchase extractor got %s", event.Name())
		}

		tokens, err := tokenAmount(purchase.Amount)
		if err != nil {
			return err
		}

		ok, err = e.store.InsertTransaction(ctx, &database.Transaction{
			ID:               transactionID(purchaseIDTag, purchase.TxHash, e.txIDLength),
			Type:             database.TxTypePurchase,
			Tokens:           tokens,
			Direction:        database.DirectionBuy,
			CounterpartyFrom: normalizeAddress(purchase.Contract),
			CounterpartyTo:   normalizeAddress(purchase.Buyer),
			TotalAmountWei:   purchase.TotalCost.String(),
			TxHash:           purchase.TxHash.Hex(),
			BlockNumber:      purchase.BlockNumber,
			LogIndex:         uint64(purchase.LogIndex),
			Status:           database.TxStatusConfirmed,
		})
		if err != nil {
			return err
		}
		if ok {
			inserted++
		}
	}

	logger.Debug("purchases: inserted %d of %d events in blocks %d-%d", inserted, len(events), from, to)

	return nil
}

// listingExtractor applies every ListingCreated of the range before any
// ListingSold or ListingCancelled, so a listing created and closed within one
// range always ends inactive.
type listingExtractor struct {
	source     logSource
	store      *database.Store
	txIDLength int
}

func (e *listingExtractor) Name() string { return "listings" }

func (e *listingExtractor) Process(ctx context.Context, from, to uint64) error {
	events, err := e.source.fetch(ctx, from, to)
	if err != nil {
		return err
	}

	var closing []abi.Event
	for _, event := range events {
		created, ok := event.(abi.ListingCreated)
		if !ok {
			closing = append(closing, event)
			continue
		}

		err := e.store.UpsertListing(ctx, &database.Listing{
			ListingIDOnchain: created.ListingID.String(),
			Seller:           normalizeAddress(created.Seller),
			TokenAddress:     normalizeAddress(created.Token),
			Amount:           created.Amount.String(),
			PricePerTokenWei: created.PricePerToken.String(),
			Active:           true,
			CreatedBlock:     created.BlockNumber,
			UpdatedBlock:     created.BlockNumber,
		})
		if err != nil {
			return err
		}
	}

	for _, event := range closing {
		switch ev := event.(type) {
		case abi.ListingSold:
			err = e.sold(ctx, ev)
		case abi.ListingCancelled:
			err = e.store.DeactivateListing(ctx, ev.ListingID.String(), ev.BlockNumber)
		default:
			err = errors.Wrapf(abi.ErrUnknownEvent, "listing extractor got %s", event.Name())
		}
		if err != nil {
			return err
		}
	}

	logger.Debug("listings: applied %d events in blocks %d-%d", len(events), from, to)

	return nil
}

func (e *listingExtractor) sold(ctx context.Context, sold abi.ListingSold) error {
	listingID := sold.ListingID.String()
	if err := e.store.DeactivateListing(ctx, listingID, sold.BlockNumber); err != nil {
		return err
	}

	tokens, err := tokenAmount(sold.Amount)
	if err != nil {
		return err
	}

	// the seller is only known when the listing was indexed
	var seller string
	listing, err := e.store.ListingByOnchainID(ctx, listingID)
	if err == nil {
		seller = listing.Seller
	} else if !errors.Is(err, database.ErrNotFound) {
		return errors.Wrapf(err, "ListingByOnchainID %s", listingID)
	}

	_, err = e.store.InsertTransaction(ctx, &database.Transaction{
		ID:               transactionID(listingSoldIDTag, sold.TxHash, e.txIDLength),
		Type:             database.TxTypeListingSold,
		Tokens:           tokens,
		Direction:        database.DirectionBuy,
		CounterpartyFrom: seller,
		CounterpartyTo:   normalizeAddress(sold.Buyer),
		TotalAmountWei:   sold.TotalPrice.String(),
		TxHash:           sold.TxHash.Hex(),
		BlockNumber:      sold.BlockNumber,
		LogIndex:         uint64(sold.LogIndex),
		Status:           database.TxStatusConfirmed,
	})

	return err
}

// swapExtractor records both swap directions as type swap. Buys carry a
// positive token amount and sells a negative one.
type swapExtractor struct {
	source     logSource
	store      *database.Store
	txIDLength int
}

func (e *swapExtractor) Name() string { return "swaps" }

func (e *swapExtractor) Process(ctx context.Context, from, to uint64) error {
	events, err := e.source.fetch(ctx, from, to)
	if err != nil {
		return err
	}

	for _, event := range events {
		meta := event.Metadata()
		pool := normalizeAddress(meta.Contract)
		transaction := &database.Transaction{
			ID:          transactionID(swapIDTag, meta.TxHash, e.txIDLength),
			Type:        database.TxTypeSwap,
			TxHash:      meta.TxHash.Hex(),
			BlockNumber: meta.BlockNumber,
			LogIndex:    uint64(meta.LogIndex),
			Status:      database.TxStatusConfirmed,
		}

		switch ev := event.(type) {
		case abi.SwapETHForToken:
			tokens, err := tokenAmount(ev.TokenOut)
			if err != nil {
				return err
			}
			transaction.Tokens = tokens
			transaction.Direction = database.DirectionBuy
			transaction.CounterpartyFrom = pool
			transaction.CounterpartyTo = normalizeAddress(ev.User)
			transaction.TotalAmountWei = ev.EthIn.String()
		case abi.SwapTokenForETH:
			tokens, err := tokenAmount(ev.TokenIn)
			if err != nil {
				return err
			}
			transaction.Tokens = -tokens
			transaction.Direction = database.DirectionSell
			transaction.CounterpartyFrom = normalizeAddress(ev.User)
			transaction.CounterpartyTo = pool
			transaction.TotalAmountWei = ev.EthOut.String()
		default:
			return errors.Wrapf(abi.ErrUnknownEvent, "swap extractor got %s", event.Name())
		}

		if _, err := e.store.InsertTransaction(ctx, transaction); err != nil {
			return err
		}
	}

	logger.Debug("swaps: applied %d events in blocks %d-%d", len(events), from, to)

	return nil
}

// oracleExtractor appends one price row per PriceUpdated log.
type oracleExtractor struct {
	source logSource
	store  *database.Store
}

func (e *oracleExtractor) Name() string { return "oracle" }

func (e *oracleExtractor) Process(ctx context.Context, from, to uint64) error {
	events, err := e.source.fetch(ctx, from, to)
	if err != nil {
		return err
	}

	for _, event := range events {
		updated, ok := event.(abi.PriceUpdated)
		if !ok {
			return errors.Wrapf(abi.ErrUnknownEvent, "oracle extractor got %s", event.Name())
		}
		if !updated.Confidence.IsUint64() {
			return errors.Wrapf(abi.ErrMalformedEvent, "confidence %s out of range", updated.Confidence)
		}

		_, err := e.store.InsertPrice(ctx, &database.OraclePrice{
			TokenAddress: normalizeAddress(updated.Token),
			PriceWei:     updated.Price.String(),
			Confidence:   updated.Confidence.Uint64(),
			BlockNumber:  updated.BlockNumber,
			Source:       database.PriceSourceEvent,
			TxHash:       updated.TxHash.Hex(),
			LogIndex:     uint64(updated.LogIndex),
		})
		if err != nil {
			return err
		}
	}

	logger.Debug("oracle: recorded %d price updates in blocks %d-%d", len(events), from, to)

	return nil
}
