package main

import (
	"context"
	"flag"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"rwa-market-indexer/boff"
	"rwa-market-indexer/chain"
	"rwa-market-indexer/config"
	"rwa-market-indexer/database"
	"rwa-market-indexer/indexer"
	"rwa-market-indexer/logger"
	"rwa-market-indexer/oracle"
	"rwa-market-indexer/scheduler"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var (
	resetCheckpointFlag = flag.Int64("reset-checkpoint", -1, "Set the indexing checkpoint to this block and exit")
	logLevelFlag        = flag.String("log-level", "", "Override logger.level from the configuration")
)

func main() {
	flag.Parse()

	cfg, err := config.BuildConfig()
	if err != nil {
		fmt.Println("Config error: ", err)
		os.Exit(1)
	}
	config.GlobalConfigCallback.Call(cfg)
	if *logLevelFlag != "" {
		if err := logger.SetLevel(*logLevelFlag); err != nil {
			fmt.Println("Flag error: ", err)
			os.Exit(1)
		}
	}
	logger.Info("Running with configuration: chain: %s, database: %s", cfg.Chain.NodeURL, cfg.DB.Database)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("Indexer stopped: %s", err)
		logger.SyncFileLogger()
		os.Exit(1)
	}

	logger.Info("Shut down")
	logger.SyncFileLogger()
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := database.ConnectAndInitialize(ctx, &cfg.DB)
	if err != nil {
		return errors.Wrap(err, "database connect and initialize")
	}
	store := database.NewStore(db)

	if *resetCheckpointFlag >= 0 {
		checkpoints := database.NewCheckpointStore(db, config.CheckpointKey)
		if err := checkpoints.Reset(ctx, uint64(*resetCheckpointFlag)); err != nil {
			return err
		}
		logger.Info("Checkpoint %s reset to %d", checkpoints.Key(), *resetCheckpointFlag)
		return nil
	}

	client, err := chain.Dial(cfg.Chain)
	if err != nil {
		return errors.Wrap(err, "chain.Dial")
	}
	defer client.Close()

	chainID, err := boff.RetryWithMaxElapsed(ctx, func() (*big.Int, error) {
		return client.ChainID(ctx)
	}, "ChainID")
	if err != nil {
		return errors.Wrap(err, "ChainID")
	}
	logger.Info("Connected to chain %s", chainID)

	ix := indexer.CreateIndexer(client, store, cfg)
	logger.Info("Extractor order: %v", ix.Pipeline().Names())

	indexerRunner := scheduler.NewRunner()
	if err := indexerRunner.Add(cfg.Indexer.Schedule, scheduler.NewTask("indexer", ix.Tick)); err != nil {
		return err
	}

	runners := []*scheduler.Runner{indexerRunner}
	if cfg.Oracle.Enabled {
		oracleRunner, closeOracle, err := newOracleRunner(ctx, cfg, store)
		if err != nil {
			return err
		}
		defer closeOracle()

		runners = append(runners, oracleRunner)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, runner := range runners {
		g.Go(func() error {
			return runner.Run(ctx)
		})
	}

	return g.Wait()
}

func newOracleRunner(ctx context.Context, cfg *config.Config, store *database.Store) (*scheduler.Runner, func(), error) {
	nodeURL, err := cfg.Chain.FullNodeURL()
	if err != nil {
		return nil, nil, err
	}

	transactor, err := chain.NewPriceTransactor(
		ctx, nodeURL, common.HexToAddress(cfg.Contracts.PriceOracle), cfg.Oracle.PrivateKey, cfg.Oracle.ConfirmTimeout(),
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "NewPriceTransactor")
	}

	loop, err := oracle.NewPushLoop(transactor, store, cfg.Oracle, nil)
	if err != nil {
		transactor.Close()
		return nil, nil, err
	}
	logger.Info("Oracle push loop submitting from %s", transactor.From().Hex())

	runner := scheduler.NewRunner()
	if err := runner.Add(cfg.Oracle.Schedule, scheduler.NewTask("oracle", loop.Tick)); err != nil {
		transactor.Close()
		return nil, nil, err
	}

	return runner, transactor.Close, nil
}
