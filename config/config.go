package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"bondchain/crypto"
)

// GenesisMint seeds a token balance when the node starts with an empty state.
type GenesisMint struct {
	Token   string `toml:"Token"`
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
}

type Config struct {
	RPCAddress  string `toml:"RPCAddress"`
	DataDir     string `toml:"DataDir"`
	NetworkName string `toml:"NetworkName"`

	BankAddress       string `toml:"BankAddress"`
	StakingAddress    string `toml:"StakingAddress"`
	ExecutableAddress string `toml:"ExecutableAddress"`

	MinAuctionDuration int64 `toml:"MinAuctionDuration"`
	MaxAuctionDuration int64 `toml:"MaxAuctionDuration"`

	GenesisMints []GenesisMint `toml:"GenesisMints,omitempty"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = "127.0.0.1:8645"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./bonddata"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "bond-local"
	}
	if cfg.MinAuctionDuration == 0 {
		cfg.MinAuctionDuration = 3600
	}
	if cfg.MaxAuctionDuration == 0 {
		cfg.MaxAuctionDuration = 7 * 24 * 3600
	}
}

// Validate checks the duration window and every configured address.
func (cfg *Config) Validate() error {
	if cfg.MinAuctionDuration < 0 {
		return fmt.Errorf("MinAuctionDuration must not be negative")
	}
	if cfg.MaxAuctionDuration <= cfg.MinAuctionDuration {
		return fmt.Errorf("MaxAuctionDuration must exceed MinAuctionDuration")
	}
	for name, value := range map[string]string{
		"BankAddress":       cfg.BankAddress,
		"StakingAddress":    cfg.StakingAddress,
		"ExecutableAddress": cfg.ExecutableAddress,
	} {
		if strings.TrimSpace(value) == "" {
			continue
		}
		if _, err := crypto.DecodeAddress(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	for i, mint := range cfg.GenesisMints {
		if strings.TrimSpace(mint.Token) == "" {
			return fmt.Errorf("GenesisMints[%d]: token required", i)
		}
		if _, err := crypto.DecodeAddress(mint.Address); err != nil {
			return fmt.Errorf("GenesisMints[%d]: %w", i, err)
		}
		if strings.TrimSpace(mint.Amount) == "" {
			return fmt.Errorf("GenesisMints[%d]: amount required", i)
		}
	}
	return nil
}

// DecodedAddress returns the 20-byte form of a configured bech32 address, or
// the zero address when unset.
func DecodedAddress(value string) [20]byte {
	var out [20]byte
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return out
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return out
	}
	copy(out[:], addr.Bytes())
	return out
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	applyDefaults(cfg)

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
