package indexer

import (
	"context"
	"fmt"
	"time"

	"rwa-market-indexer/config"
	"rwa-market-indexer/database"
	"rwa-market-indexer/logger"
)

type Indexer struct {
	ledger      LedgerClient
	checkpoints *database.CheckpointStore
	pipeline    Pipeline
	params      config.IndexerConfig
}

// PassResult describes one indexing pass. Skipped is set when the ledger
// had no new confirmed blocks.
type PassResult struct {
	From    uint64
	To      uint64
	Skipped bool
}

func New(
	ledger LedgerClient, checkpoints *database.CheckpointStore, pipeline Pipeline, params config.IndexerConfig,
) *Indexer {
	return &Indexer{
		ledger:      ledger,
		checkpoints: checkpoints,
		pipeline:    pipeline,
		params:      params,
	}
}

func CreateIndexer(ledger LedgerClient, store *database.Store, cfg *config.Config) *Indexer {
	checkpoints := database.NewCheckpointStore(store.DB(), config.CheckpointKey)
	pipeline := NewPipeline(ledger, store, cfg.Contracts, cfg.Indexer)

	return New(ledger, checkpoints, pipeline, cfg.Indexer)
}

func (ix *Indexer) Pipeline() Pipeline {
	return ix.pipeline
}

// RunPass processes every block after the checkpoint up to the confirmed
// height, snapshotted once at the start of the pass. The checkpoint only
// moves when every extractor succeeds; otherwise the whole range is
// processed again by the next pass.
func (ix *Indexer) RunPass(ctx context.Context) (PassResult, error) {
	checkpoint, found, err := ix.checkpoints.Load(ctx)
	if err != nil {
		return PassResult{}, fmt.Errorf("RunPass: %w", err)
	}

	height, err := fetchCurrentHeight(ctx, ix.ledger)
	if err != nil {
		return PassResult{}, fmt.Errorf("RunPass: %w", err)
	}
	if height < ix.params.Confirmations {
		return PassResult{Skipped: true}, nil
	}
	toBlock := height - ix.params.Confirmations

	fromBlock := ix.params.StartBlock
	if found {
		if checkpoint >= toBlock {
			return PassResult{From: checkpoint + 1, To: toBlock, Skipped: true}, nil
		}
		fromBlock = checkpoint + 1
	}
	if fromBlock > toBlock {
		return PassResult{From: fromBlock, To: toBlock, Skipped: true}, nil
	}

	result := PassResult{From: fromBlock, To: toBlock}
	for _, extractor := range ix.pipeline {
		if err := extractor.Process(ctx, fromBlock, toBlock); err != nil {
			return result, fmt.Errorf("RunPass: extractor %s blocks %d-%d: %w", extractor.Name(), fromBlock, toBlock, err)
		}
	}

	if err := ix.checkpoints.Commit(ctx, toBlock); err != nil {
		return result, fmt.Errorf("RunPass: %w", err)
	}

	return result, nil
}

// Tick runs one pass and logs its outcome. It is the scheduled entry point.
func (ix *Indexer) Tick(ctx context.Context) error {
	startTime := time.Now()

	result, err := ix.RunPass(ctx)
	if err != nil {
		logger.Error("Indexing pass failed, checkpoint unchanged: %s", err)
		return err
	}

	if result.Skipped {
		logger.Debug("Up to date, no new blocks after %d", result.To)
		return nil
	}

	logger.Info(
		"Indexed blocks %d to %d in %d milliseconds",
		result.From, result.To, time.Since(startTime).Milliseconds(),
	)

	return nil
}
