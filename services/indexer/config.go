package indexer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/givety/givety-indexer/services/indexer/store"
)

// EnvPrefix prefixes environment overrides, e.g. GIVETY_INDEXER_RPC_URL.
const EnvPrefix = "GIVETY_INDEXER"

// Config keys.
const (
	KeyListenAddr    = "listen_addr"
	KeyRPCURL        = "rpc_url"
	KeyDeployment    = "deployment"
	KeyStoreDriver   = "store.driver"
	KeyStorePath     = "store.path"
	KeyStartBlock    = "start_block"
	KeyConfirmations = "confirmations"
	KeyBatchSize     = "batch_size"
	KeyPollInterval  = "poll_interval"
	KeyLogLevel      = "log.level"
	KeyLogFormat     = "log.format"
	KeyLogFile       = "log.file"
)

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// Config is the indexer daemon configuration.
type Config struct {
	ListenAddr string      `mapstructure:"listen_addr"`
	RPCURL     string      `mapstructure:"rpc_url"`
	Deployment string      `mapstructure:"deployment"`
	Store      StoreConfig `mapstructure:"store"`
	// StartBlock overrides the deployment's start block when non-zero.
	StartBlock    uint64        `mapstructure:"start_block"`
	Confirmations uint64        `mapstructure:"confirmations"`
	BatchSize     uint64        `mapstructure:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	Log           LogConfig     `mapstructure:"log"`
}

// SetDefaults registers the default configuration on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyListenAddr, ":8080")
	v.SetDefault(KeyRPCURL, "http://localhost:8545")
	v.SetDefault(KeyDeployment, "deployments/default.json")
	v.SetDefault(KeyStoreDriver, store.DriverSQLite)
	v.SetDefault(KeyStorePath, "givety-indexer.db")
	v.SetDefault(KeyStartBlock, 0)
	v.SetDefault(KeyConfirmations, 12)
	v.SetDefault(KeyBatchSize, 2000)
	v.SetDefault(KeyPollInterval, 5*time.Second)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyLogFile, "")
}

// NewViper returns a viper instance with defaults and environment overrides.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads the optional config file into v and decodes the result.
func LoadConfig(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Store.Driver {
	case store.DriverMemory, store.DriverSQLite, store.DriverLevelDB:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver != store.DriverMemory && c.Store.Path == "" {
		return errors.New("store path required")
	}
	if c.BatchSize == 0 {
		return errors.New("batch size must be positive")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	return nil
}
