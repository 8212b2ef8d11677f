package indexer

import (
	"rwa-market-indexer/config"
	"rwa-market-indexer/database"
	"rwa-market-indexer/indexer/abi"

	"github.com/ethereum/go-ethereum/common"
)

// Pipeline is the ordered list of extractors run by every pass.
type Pipeline []Extractor

// NewPipeline builds the extractors in their fixed order: identity,
// purchases, listings, swaps, oracle.
func NewPipeline(
	ledger LedgerClient, store *database.Store, contracts config.ContractsConfig, params config.IndexerConfig,
) Pipeline {
	source := func(address string, events ...string) logSource {
		return logSource{
			ledger:   ledger,
			address:  common.HexToAddress(address),
			events:   events,
			logRange: params.LogRange,
		}
	}

	return Pipeline{
		&identityExtractor{
			source: source(contracts.IdentityRegistry,
				abi.EventWhitelisted, abi.EventBlacklisted,
				abi.EventRemovedFromWhitelist, abi.EventRemovedFromBlacklist,
			),
			store: store,
		},
		&purchaseExtractor{
			source:     source(contracts.TokenSale, abi.EventTokensPurchased),
			store:      store,
			txIDLength: params.TxIDLength,
		},
		&listingExtractor{
			source: source(contracts.Marketplace,
				abi.EventListingCreated, abi.EventListingSold, abi.EventListingCancelled,
			),
			store:      store,
			txIDLength: params.TxIDLength,
		},
		&swapExtractor{
			source:     source(contracts.SwapPool, abi.EventSwapETHForToken, abi.EventSwapTokenForETH),
			store:      store,
			txIDLength: params.TxIDLength,
		},
		&oracleExtractor{
			source: source(contracts.PriceOracle, abi.EventPriceUpdated),
			store:  store,
		},
	}
}

func (p Pipeline) Names() []string {
	names := make([]string, len(p))
	for i, e := range p {
		names[i] = e.Name()
	}

	return names
}
