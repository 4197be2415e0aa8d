package config

import (
	"fmt"
	"strings"

	"farmstake/core/types"
	"farmstake/native/staking"
)

// MinSecretLength is the shortest HMAC secret accepted for admin tokens.
const MinSecretLength = 32

// Validate checks a loaded configuration for values the daemon cannot run with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	switch cfg.StorageBackend {
	case BackendMemory:
	case BackendLevelDB, BackendBolt:
		if strings.TrimSpace(cfg.DataDir) == "" {
			return fmt.Errorf("storage: DataDir required for %s backend", cfg.StorageBackend)
		}
	default:
		return fmt.Errorf("storage: unknown backend %q", cfg.StorageBackend)
	}
	reward, collection := types.NormalizeAssetID(cfg.RewardAsset), types.NormalizeAssetID(cfg.StakeCollection)
	if reward == "" {
		return fmt.Errorf("assets: RewardAsset must be configured")
	}
	if collection == "" {
		return fmt.Errorf("assets: StakeCollection must be configured")
	}
	if collection == reward {
		return fmt.Errorf("assets: RewardAsset and StakeCollection must differ")
	}
	if strings.HasPrefix(reward, collection+"/") {
		return fmt.Errorf("assets: RewardAsset %q is a class of StakeCollection %q", reward, collection)
	}
	if _, err := staking.ParseAccount(cfg.ModuleAccount); err != nil {
		return fmt.Errorf("assets: ModuleAccount: %w", err)
	}
	seen := make(map[uint64]struct{}, len(cfg.Pools))
	for _, pool := range cfg.Pools {
		if pool.DurationSeconds == 0 {
			return fmt.Errorf("pools: pool %d duration must be positive", pool.ID)
		}
		if _, dup := seen[pool.ID]; dup {
			return fmt.Errorf("pools: pool %d configured twice", pool.ID)
		}
		seen[pool.ID] = struct{}{}
	}
	if secret := cfg.Admin.JWTSecret; secret != "" && len(secret) < MinSecretLength {
		return fmt.Errorf("admin: jwt secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.Admin.RequireAccountTokens && cfg.Admin.JWTSecret == "" {
		return fmt.Errorf("admin: RequireAccountTokens needs a jwt secret")
	}
	if cfg.MaxConnections < 0 {
		return fmt.Errorf("server: MaxConnections must not be negative")
	}
	if cfg.RateLimit.Burst < 1 {
		return fmt.Errorf("rate_limit: burst must be positive")
	}
	if r := cfg.Telemetry.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry: sample ratio must be within [0,1]")
	}
	return nil
}
