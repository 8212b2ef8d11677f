package config

import (
	"flag"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap/zapcore"
)

const (
	CheckpointKey = "last_block"

	DefaultIndexerSchedule = "* * * * *"
	DefaultOracleSchedule  = "*/5 * * * *"
	DefaultTxIDLength      = 16
	DefaultConfidenceBps   = 9500
	DefaultConfirmTimeout  = 120

	DefaultLogFile        = "./logger/logs/rwa-market-indexer.log"
	DefaultLogFileSizeMiB = 10

	ChainTypeEth  = "eth"
	ChainTypeAvax = "avax"
)

var (
	GlobalConfigCallback ConfigCallback[GlobalConfig] = ConfigCallback[GlobalConfig]{}
	CfgFlag                                           = flag.String("config", "config.toml", "Configuration file (toml format)")
	EnvFileFlag                                       = flag.String("env", ".env", "Optional env file loaded before environment overrides")
	BackoffMaxElapsedTime                             = 5 * time.Minute
	Timeout                                           = 10 * time.Second
)

type GlobalConfig interface {
	LoggerConfig() LoggerConfig
	ChainConfig() ChainConfig
}

type Config struct {
	DB        DBConfig        `toml:"db"`
	Logger    LoggerConfig    `toml:"logger"`
	Chain     ChainConfig     `toml:"chain"`
	Contracts ContractsConfig `toml:"contracts"`
	Indexer   IndexerConfig   `toml:"indexer"`
	Oracle    OracleConfig    `toml:"oracle"`
}

type LoggerConfig struct {
	Level       string `toml:"level"` // valid values are: DEBUG, INFO, WARN, ERROR, DPANIC, PANIC, FATAL (zap)
	File        string `toml:"file"`
	MaxFileSize int    `toml:"max_file_size"` // In megabytes
	Console     bool   `toml:"console"`
}

type DBConfig struct {
	Driver     string `toml:"driver" envconfig:"DB_DRIVER"` // mysql (default), postgres or sqlite
	Host       string `toml:"host" envconfig:"DB_HOST"`
	Port       int    `toml:"port" envconfig:"DB_PORT"`
	Database   string `toml:"database" envconfig:"DB_DATABASE"`
	Username   string `toml:"username" envconfig:"DB_USERNAME"`
	Password   string `toml:"password" envconfig:"DB_PASSWORD"`
	LogQueries bool   `toml:"log_queries"`
	// DropTableAtStart wipes every projection table, including the checkpoint.
	DropTableAtStart bool `toml:"drop_table_at_start"`
}

type ChainConfig struct {
	NodeURL   string `toml:"node_url" envconfig:"CHAIN_NODE_URL"`
	APIKey    string `toml:"api_key" envconfig:"CHAIN_API_KEY"`
	ChainType string `toml:"chain_type"`
}

type ContractsConfig struct {
	IdentityRegistry string `toml:"identity_registry"`
	TokenSale        string `toml:"token_sale"`
	Marketplace      string `toml:"marketplace"`
	SwapPool         string `toml:"swap_pool"`
	PriceOracle      string `toml:"price_oracle"`
}

type IndexerConfig struct {
	Schedule      string `toml:"schedule"`
	StartBlock    uint64 `toml:"start_block"`
	LogRange      uint64 `toml:"log_range"`
	Confirmations uint64 `toml:"confirmations"`
	TxIDLength    int    `toml:"tx_id_length"`
}

type OracleConfig struct {
	Enabled               bool   `toml:"enabled"`
	Schedule              string `toml:"schedule"`
	TokenAddress          string `toml:"token_address"`
	BasePriceWei          string `toml:"base_price_wei"`
	ConfidenceBps         uint64 `toml:"confidence_bps"`
	ConfirmTimeoutSeconds int    `toml:"confirm_timeout_seconds"`
	PrivateKey            string `toml:"private_key" envconfig:"ORACLE_PRIVATE_KEY"`
}

func newConfig() *Config {
	return &Config{
		DB: DBConfig{
			Driver: "mysql",
		},
		Logger: LoggerConfig{
			Level:       "INFO",
			File:        DefaultLogFile,
			MaxFileSize: DefaultLogFileSizeMiB,
			Console:     true,
		},
		Chain: ChainConfig{
			ChainType: ChainTypeEth,
		},
		Indexer: IndexerConfig{
			Schedule:   DefaultIndexerSchedule,
			TxIDLength: DefaultTxIDLength,
		},
		Oracle: OracleConfig{
			Schedule:              DefaultOracleSchedule,
			ConfidenceBps:         DefaultConfidenceBps,
			ConfirmTimeoutSeconds: DefaultConfirmTimeout,
		},
	}
}

func BuildConfig() (*Config, error) {
	cfgFileName := *CfgFlag

	cfg := newConfig()
	err := ParseConfigFile(cfg, cfgFileName)
	if err != nil {
		return nil, err
	}

	err = LoadEnvFile(*EnvFileFlag)
	if err != nil {
		return nil, err
	}

	err = ReadEnv(cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func ParseConfigFile(cfg *Config, fileName string) error {
	content, err := os.ReadFile(fileName)
	if err != nil {
		return fmt.Errorf("error opening config file: %w", err)
	}

	_, err = toml.Decode(string(content), cfg)
	if err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	return nil
}

// LoadEnvFile is a no-op when the file does not exist.
func LoadEnvFile(fileName string) error {
	if fileName == "" {
		return nil
	}

	if _, err := os.Stat(fileName); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	if err := godotenv.Load(fileName); err != nil {
		return fmt.Errorf("error loading env file: %w", err)
	}
	return nil
}

func ReadEnv(cfg interface{}) error {
	err := envconfig.Process("", cfg)
	if err != nil {
		return fmt.Errorf("error reading env config: %w", err)
	}
	return nil
}

func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Logger.Level); err != nil {
		return errors.Wrap(err, "logger.level")
	}

	switch c.Chain.ChainType {
	case ChainTypeEth, ChainTypeAvax:
	default:
		return errors.Errorf("invalid chain type %q", c.Chain.ChainType)
	}

	contracts := map[string]string{
		"identity_registry": c.Contracts.IdentityRegistry,
		"token_sale":        c.Contracts.TokenSale,
		"marketplace":       c.Contracts.Marketplace,
		"swap_pool":         c.Contracts.SwapPool,
		"price_oracle":      c.Contracts.PriceOracle,
	}
	for name, address := range contracts {
		if !common.IsHexAddress(address) {
			return errors.Errorf("contracts.%s: invalid address %q", name, address)
		}
	}

	if _, err := cron.ParseStandard(c.Indexer.Schedule); err != nil {
		return errors.Wrap(err, "indexer.schedule")
	}

	if c.Indexer.TxIDLength <= 0 || c.Indexer.TxIDLength > 64 {
		return errors.Errorf("indexer.tx_id_length must be in (0, 64], got %d", c.Indexer.TxIDLength)
	}

	if !c.Oracle.Enabled {
		return nil
	}

	if _, err := cron.ParseStandard(c.Oracle.Schedule); err != nil {
		return errors.Wrap(err, "oracle.schedule")
	}
	if !common.IsHexAddress(c.Oracle.TokenAddress) {
		return errors.Errorf("oracle.token_address: invalid address %q", c.Oracle.TokenAddress)
	}
	if _, err := c.Oracle.BasePrice(); err != nil {
		return err
	}
	if c.Oracle.ConfidenceBps > 10000 {
		return errors.Errorf("oracle.confidence_bps must be at most 10000, got %d", c.Oracle.ConfidenceBps)
	}
	if c.Oracle.PrivateKey == "" {
		return errors.New("oracle.private_key is required when the oracle is enabled")
	}

	return nil
}

func (c Config) LoggerConfig() LoggerConfig {
	return c.Logger
}

func (c Config) ChainConfig() ChainConfig {
	return c.Chain
}

func (cc ChainConfig) FullNodeURL() (*url.URL, error) {
	u, err := url.Parse(cc.NodeURL)
	if err != nil {
		return nil, errors.Wrap(err, "url.Parse")
	}

	if cc.APIKey != "" {
		q := u.Query()
		q.Set("x-apikey", cc.APIKey)
		u.RawQuery = q.Encode()
	}

	return u, nil
}

func (oc OracleConfig) BasePrice() (*big.Int, error) {
	price, ok := new(big.Int).SetString(oc.BasePriceWei, 10)
	if !ok || price.Sign() <= 0 {
		return nil, errors.Errorf("oracle.base_price_wei must be a positive base-10 integer, got %q", oc.BasePriceWei)
	}
	return price, nil
}

func (oc OracleConfig) ConfirmTimeout() time.Duration {
	return time.Duration(oc.ConfirmTimeoutSeconds) * time.Second
}
