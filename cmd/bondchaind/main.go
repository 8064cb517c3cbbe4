package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"bondchain/config"
	"bondchain/core/events"
	"bondchain/core/state"
	"bondchain/crypto"
	"bondchain/native/auction"
	"bondchain/native/reserve"
	"bondchain/native/token"
	"bondchain/observability/logging"
	"bondchain/rpc"
	"bondchain/storage"
)

// logEmitter mirrors every protocol event onto the structured log so
// operators can follow state transitions without a dedicated indexer.
type logEmitter struct {
	logger *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	l.logger.Info("protocol event", "type", evt.EventType())
}

// moduleAddress derives a deterministic account for a protocol-owned vault.
// These accounts have no corresponding private key.
func moduleAddress(name string) [20]byte {
	var out [20]byte
	digest := ethcrypto.Keccak256([]byte("bondchain/module/" + name))
	copy(out[:], digest[12:])
	return out
}

// loadNodeKey loads the node identity key from the data directory, generating
// and persisting a fresh one on first boot.
func loadNodeKey(path string) (*crypto.PrivateKey, error) {
	encoded, err := os.ReadFile(path)
	if err == nil {
		decoded, decodeErr := hex.DecodeString(strings.TrimSpace(string(encoded)))
		if decodeErr != nil {
			return nil, fmt.Errorf("node key %s: %w", path, decodeErr)
		}
		return crypto.PrivateKeyFromBytes(decoded)
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key.Bytes())), 0o600); err != nil {
		return nil, err
	}
	return key, nil
}

var genesisAppliedKey = []byte("genesis/applied")

func applyGenesisMints(manager *state.Manager, tokens *token.Ledger, cfg *config.Config) error {
	var marker string
	ok, err := manager.KVGet(genesisAppliedKey, &marker)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	for _, mint := range cfg.GenesisMints {
		amount, valid := new(big.Int).SetString(strings.TrimSpace(mint.Amount), 10)
		if !valid || amount.Sign() < 0 {
			return fmt.Errorf("genesis mint %s: invalid amount %q", mint.Token, mint.Amount)
		}
		if err := tokens.Mint(mint.Token, config.DecodedAddress(mint.Address), amount); err != nil {
			return fmt.Errorf("genesis mint %s: %w", mint.Token, err)
		}
	}
	return manager.KVPut(genesisAppliedKey, "applied")
}

func main() {
	configPath := flag.String("config", "./config.toml", "path to the node configuration file")
	flag.Parse()

	logger := logging.Setup("bondchaind", os.Getenv("BOND_ENV"))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data dir", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	nodeKey, err := loadNodeKey(filepath.Join(cfg.DataDir, "node_key"))
	if err != nil {
		logger.Error("failed to load node key", "error", err)
		os.Exit(1)
	}
	logger.Info("node identity", "address", nodeKey.PubKey().Address().String())

	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "db"))
	if err != nil {
		logger.Error("failed to open database", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	manager := state.NewManager(db)
	tokens := token.NewLedger(manager)
	positions := token.NewRegistry(manager)

	if err := applyGenesisMints(manager, tokens, cfg); err != nil {
		logger.Error("failed to apply genesis mints", "error", err)
		os.Exit(1)
	}

	emitter := logEmitter{logger: logger}

	reserveLedger := reserve.NewLedger(manager, tokens, moduleAddress("reserve/vault"))
	reserveEngine := reserve.NewEngine(reserveLedger, tokens)
	reserveEngine.SetEmitter(emitter)
	reserveEngine.SetBankAddress(config.DecodedAddress(cfg.BankAddress))
	reserveEngine.SetStakingAddress(config.DecodedAddress(cfg.StakingAddress))
	reserveEngine.SetExecutableAddress(config.DecodedAddress(cfg.ExecutableAddress))

	auctionStore := auction.NewStore(manager)
	auctionEngine := auction.NewEngine(auctionStore, tokens, positions, moduleAddress("auction/escrow"))
	auctionEngine.SetEmitter(emitter)
	auctionEngine.SetExecutableAddress(config.DecodedAddress(cfg.ExecutableAddress))
	if err := auctionEngine.InitDurationBounds(cfg.MinAuctionDuration, cfg.MaxAuctionDuration); err != nil {
		logger.Error("failed to seed auction duration bounds", "error", err)
		os.Exit(1)
	}

	server := rpc.NewServer(reserveEngine, auctionEngine)
	logger.Info("rpc server listening", "address", cfg.RPCAddress, "network", cfg.NetworkName)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("rpc server stopped", "error", err)
		os.Exit(1)
	}
}
