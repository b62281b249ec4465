package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full daemon configuration, read from config/config.yaml and
// overridable with SNWATCH_* environment variables (e.g. SNWATCH_RPC_MAINNET_URL).
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	LevelDB  LevelDBConfig  `mapstructure:"leveldb"`
	RPC      RPCConfig      `mapstructure:"rpc"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
	Staking  StakingConfig  `mapstructure:"staking"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Telegram BackendConfig  `mapstructure:"telegram"`
	Discord  BackendConfig  `mapstructure:"discord"`
	Explorer ExplorerConfig `mapstructure:"explorer"`
}

type LogConfig struct {
	AppLogFile string `mapstructure:"app_log_file"`
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DatabaseConfig selects the subscription store. Driver is "sqlite" or "postgres".
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type LevelDBConfig struct {
	Path string `mapstructure:"path"`
}

// RPCConfig holds the node endpoints. An empty TestnetURL disables testnet monitoring.
type RPCConfig struct {
	MainnetURL string        `mapstructure:"mainnet_url"`
	TestnetURL string        `mapstructure:"testnet_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type MonitorConfig struct {
	Interval                time.Duration `mapstructure:"interval"`
	TickTimeout             time.Duration `mapstructure:"tick_timeout"`
	MinVersion              string        `mapstructure:"min_version"`
	ObsoleteRepeat          time.Duration `mapstructure:"obsolete_repeat"`
	ExpiryThresholds        []int         `mapstructure:"expiry_thresholds"`
	TestnetExpiryThresholds []int         `mapstructure:"testnet_expiry_thresholds"`
}

// StakingConfig picks the mainnet stake requirement policy: "exponential" or "breakpoints".
type StakingConfig struct {
	Policy             string       `mapstructure:"policy"`
	ForkHeight         uint64       `mapstructure:"fork_height"`
	Breakpoints        []Breakpoint `mapstructure:"breakpoints"`
	TestnetRequirement float64      `mapstructure:"testnet_requirement"`
}

type Breakpoint struct {
	Height uint64  `mapstructure:"height"`
	Amount float64 `mapstructure:"amount"`
}

type NotifyConfig struct {
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
}

// BackendConfig configures one messaging backend; an empty token disables it.
type BackendConfig struct {
	Token  string `mapstructure:"token"`
	APIURL string `mapstructure:"api_url"`
}

type ExplorerConfig struct {
	Mainnet string `mapstructure:"mainnet"`
	Testnet string `mapstructure:"testnet"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "data/snwatch.sqlite")
	v.SetDefault("leveldb.path", "data/snapshots")
	v.SetDefault("rpc.mainnet_url", "http://127.0.0.1:22023")
	v.SetDefault("rpc.timeout", 10*time.Second)
	v.SetDefault("monitor.interval", 10*time.Second)
	v.SetDefault("monitor.tick_timeout", 60*time.Second)
	v.SetDefault("monitor.obsolete_repeat", 12*time.Hour)
	v.SetDefault("monitor.expiry_thresholds", []int{48, 24, 6})
	v.SetDefault("monitor.testnet_expiry_thresholds", []int{6, 1})
	v.SetDefault("staking.policy", "exponential")
	v.SetDefault("staking.fork_height", 235987)
	v.SetDefault("staking.testnet_requirement", 100)
	v.SetDefault("notify.rate_per_second", 25)
	v.SetDefault("notify.burst", 30)
	v.SetDefault("telegram.api_url", "https://api.telegram.org")
	v.SetDefault("discord.api_url", "https://discord.com/api/v9")
	v.SetDefault("explorer.mainnet", "oxen.observer")
	v.SetDefault("explorer.testnet", "testnet.oxen.observer")
}

// Load reads the config file at path. A missing path means defaults plus environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("SNWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if c.RPC.MainnetURL == "" {
		return fmt.Errorf("rpc.mainnet_url is required")
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Staking.Policy {
	case "exponential":
	case "breakpoints":
		if len(c.Staking.Breakpoints) == 0 {
			return fmt.Errorf("staking.policy breakpoints needs staking.breakpoints")
		}
	default:
		return fmt.Errorf("unknown staking policy %q", c.Staking.Policy)
	}
	if err := descending(c.Monitor.ExpiryThresholds); err != nil {
		return fmt.Errorf("monitor.expiry_thresholds: %w", err)
	}
	if err := descending(c.Monitor.TestnetExpiryThresholds); err != nil {
		return fmt.Errorf("monitor.testnet_expiry_thresholds: %w", err)
	}
	return nil
}

func descending(hours []int) error {
	for i, h := range hours {
		if h <= 0 {
			return fmt.Errorf("threshold %d must be positive", h)
		}
		if i > 0 && h >= hours[i-1] {
			return fmt.Errorf("thresholds must be strictly descending")
		}
	}
	return nil
}
