package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"farmstake/native/staking"
)

const (
	BackendMemory  = "memory"
	BackendLevelDB = "leveldb"
	BackendBolt    = "bolt"
)

// Config captures the runtime configuration of the staking daemon.
type Config struct {
	ListenAddress     string          `toml:"ListenAddress" yaml:"listen"`
	Environment       string          `toml:"Environment" yaml:"environment"`
	DataDir           string          `toml:"DataDir" yaml:"data_dir"`
	StorageBackend    string          `toml:"StorageBackend" yaml:"storage_backend"`
	JournalDSN        string          `toml:"JournalDSN" yaml:"journal_dsn"`
	RewardAsset       string          `toml:"RewardAsset" yaml:"reward_asset"`
	StakeCollection   string          `toml:"StakeCollection" yaml:"stake_collection"`
	ModuleAccount     string          `toml:"ModuleAccount" yaml:"module_account"`
	DefaultDuration   uint64          `toml:"DefaultDurationSeconds" yaml:"default_duration_seconds"`
	EventHistory      int             `toml:"EventHistory" yaml:"event_history"`
	ReadHeaderTimeout Duration        `toml:"ReadHeaderTimeout" yaml:"read_header_timeout"`
	MaxConnections    int             `toml:"MaxConnections" yaml:"max_connections"`
	ShutdownTimeout   Duration        `toml:"ShutdownTimeout" yaml:"shutdown_timeout"`
	Pools             []PoolConfig    `toml:"Pools" yaml:"pools"`
	Admin             AdminConfig     `toml:"Admin" yaml:"admin"`
	RateLimit         RateLimitConfig `toml:"RateLimit" yaml:"rate_limit"`
	Logging           LoggingConfig   `toml:"Logging" yaml:"logging"`
	Telemetry         TelemetryConfig `toml:"Telemetry" yaml:"telemetry"`
}

// Load loads the configuration from the given path. Files ending in .yaml or
// .yml are decoded as YAML, everything else as TOML. A missing file is
// created with defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if isYAML(path) {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		dec := yaml.NewDecoder(file)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown field %s", path, undecoded[0].String())
		}
	}
	applyDefaults(cfg)
	if err := cfg.Admin.normalise(); err != nil {
		return nil, fmt.Errorf("admin security: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh installation.
func Default() *Config {
	cfg := &Config{
		ListenAddress:   ":8086",
		Environment:     "local",
		DataDir:         "./farmstake-data",
		StorageBackend:  BackendLevelDB,
		JournalDSN:      "journal.db",
		RewardAsset:     "reward",
		StakeCollection: "farm",
		ModuleAccount:   "0x0000000000000000000000000000000000fa4e57",
		DefaultDuration: staking.DefaultRewardDuration,
		Pools:           []PoolConfig{},
		Admin: AdminConfig{
			JWTSecretEnv: "FARMSTAKE_ADMIN_SECRET",
			Issuer:       "farmstake",
			Audience:     "stakingd",
		},
	}
	applyDefaults(cfg)
	return cfg
}

func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8086"
	}
	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = BackendMemory
	}
	if cfg.DefaultDuration == 0 {
		cfg.DefaultDuration = staking.DefaultRewardDuration
	}
	if cfg.EventHistory <= 0 {
		cfg.EventHistory = 1024
	}
	if cfg.ReadHeaderTimeout.Duration == 0 {
		cfg.ReadHeaderTimeout.Duration = 5 * time.Second
	}
	if cfg.ShutdownTimeout.Duration == 0 {
		cfg.ShutdownTimeout.Duration = 10 * time.Second
	}
	if strings.TrimSpace(cfg.Admin.Scope) == "" {
		cfg.Admin.Scope = "staking:admin"
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit.RequestsPerSecond = 20
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 40
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.Logging.MaxBackups <= 0 {
		cfg.Logging.MaxBackups = 5
	}
	if cfg.Logging.MaxAgeDays <= 0 {
		cfg.Logging.MaxAgeDays = 28
	}
	if cfg.Telemetry.MetricInterval.Duration == 0 {
		cfg.Telemetry.MetricInterval.Duration = 15 * time.Second
	}
	if cfg.Pools == nil {
		cfg.Pools = []PoolConfig{}
	}
}

func (a *AdminConfig) normalise() error {
	if a == nil {
		return fmt.Errorf("admin configuration missing")
	}
	a.JWTSecret = strings.TrimSpace(a.JWTSecret)
	a.JWTSecretEnv = strings.TrimSpace(a.JWTSecretEnv)
	a.JWTSecretFile = strings.TrimSpace(a.JWTSecretFile)
	a.Issuer = strings.TrimSpace(a.Issuer)
	a.Audience = strings.TrimSpace(a.Audience)
	a.Scope = strings.TrimSpace(a.Scope)
	if a.JWTSecret != "" {
		return nil
	}
	switch {
	case a.JWTSecretEnv != "":
		a.JWTSecret = strings.TrimSpace(os.Getenv(a.JWTSecretEnv))
	case a.JWTSecretFile != "":
		contents, err := os.ReadFile(a.JWTSecretFile)
		if err != nil {
			return fmt.Errorf("read jwt_secret_file: %w", err)
		}
		a.JWTSecret = strings.TrimSpace(string(contents))
	}
	return nil
}
