package abi

import (
	"embed"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	EventWhitelisted          = "Whitelisted"
	EventBlacklisted          = "Blacklisted"
	EventRemovedFromWhitelist = "RemovedFromWhitelist"
	EventRemovedFromBlacklist = "RemovedFromBlacklist"
	EventTokensPurchased      = "TokensPurchased"
	EventListingCreated       = "ListingCreated"
	EventListingSold          = "ListingSold"
	EventListingCancelled     = "ListingCancelled"
	EventSwapETHForToken      = "SwapETHForToken"
	EventSwapTokenForETH      = "SwapTokenForETH"
	EventPriceUpdated         = "PriceUpdated"

	MethodUpdatePrice = "updatePrice"
)

//go:embed contracts/*.json
var contractFiles embed.FS

var (
	IdentityRegistry = mustLoad("IdentityRegistry")
	TokenSale        = mustLoad("TokenSale")
	Marketplace      = mustLoad("Marketplace")
	SwapPool         = mustLoad("SwapPool")
	PriceOracle      = mustLoad("PriceOracle")

	// every event the indexer understands, keyed by topic0
	eventsByTopic = make(map[common.Hash]eventSpec)
)

type eventSpec struct {
	event   abi.Event
	indexed abi.Arguments
	decode  func(Meta, fields) (Event, error)
}

func init() {
	register(IdentityRegistry, EventWhitelisted, decodeWhitelisted)
	register(IdentityRegistry, EventBlacklisted, decodeBlacklisted)
	register(IdentityRegistry, EventRemovedFromWhitelist, decodeRemovedFromWhitelist)
	register(IdentityRegistry, EventRemovedFromBlacklist, decodeRemovedFromBlacklist)
	register(TokenSale, EventTokensPurchased, decodeTokensPurchased)
	register(Marketplace, EventListingCreated, decodeListingCreated)
	register(Marketplace, EventListingSold, decodeListingSold)
	register(Marketplace, EventListingCancelled, decodeListingCancelled)
	register(SwapPool, EventSwapETHForToken, decodeSwapETHForToken)
	register(SwapPool, EventSwapTokenForETH, decodeSwapTokenForETH)
	register(PriceOracle, EventPriceUpdated, decodePriceUpdated)
}

func mustLoad(name string) abi.ABI {
	file, err := contractFiles.ReadFile("contracts/" + name + ".json")
	if err != nil {
		panic(fmt.Sprintf("%s abi: %s", name, err))
	}

	parsed, err := abi.JSON(strings.NewReader(string(file)))
	if err != nil {
		panic(fmt.Sprintf("%s abi: %s", name, err))
	}

	return parsed
}

func register(contract abi.ABI, name string, decode func(Meta, fields) (Event, error)) {
	event, ok := contract.Events[name]
	if !ok {
		panic(fmt.Sprintf("event %s not in abi", name))
	}

	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}

	eventsByTopic[event.ID] = eventSpec{event: event, indexed: indexed, decode: decode}
}

// Topic returns topic0 of a registered event.
func Topic(name string) common.Hash {
	for topic, spec := range eventsByTopic {
		if spec.event.Name == name {
			return topic
		}
	}

	panic(fmt.Sprintf("unknown event %s", name))
}

// Topics returns topic0 values of the named events, in the given order.
func Topics(names ...string) []common.Hash {
	topics := make([]common.Hash, len(names))
	for i, name := range names {
		topics[i] = Topic(name)
	}

	return topics
}
