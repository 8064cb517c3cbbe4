package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"bondchain/crypto"
)

var testBech32 = crypto.NewAddress(crypto.BondPrefix, make([]byte, 20)).String()

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, "127.0.0.1:8645", cfg.RPCAddress)
	require.Equal(t, "./bonddata", cfg.DataDir)
	require.Equal(t, "bond-local", cfg.NetworkName)
	require.Equal(t, int64(3600), cfg.MinAuctionDuration)
	require.Equal(t, int64(7*24*3600), cfg.MaxAuctionDuration)
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := writeConfig(t, "RPCAddress = \"0.0.0.0:9000\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:9000", cfg.RPCAddress)
	require.Equal(t, "./bonddata", cfg.DataDir)
}

func TestValidateRejectsInvertedDurations(t *testing.T) {
	path := writeConfig(t, "MinAuctionDuration = 100\nMaxAuctionDuration = 50\n")
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "MaxAuctionDuration")
}

func TestValidateRejectsBadAddress(t *testing.T) {
	path := writeConfig(t, "BankAddress = \"not-an-address\"\n")
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "BankAddress")
}

func TestValidateGenesisMints(t *testing.T) {
	path := writeConfig(t, `
[[GenesisMints]]
Token = "USD"
Address = "`+testBech32+`"
Amount = "1000"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.GenesisMints, 1)
	require.Equal(t, "USD", cfg.GenesisMints[0].Token)
}

func TestValidateGenesisMintMissingAmount(t *testing.T) {
	path := writeConfig(t, `
[[GenesisMints]]
Token = "USD"
Address = "`+testBech32+`"
Amount = ""
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "amount required")
}

func TestDecodedAddress(t *testing.T) {
	require.Equal(t, [20]byte{}, DecodedAddress(""))
	require.Equal(t, [20]byte{}, DecodedAddress("garbage"))
	require.Equal(t, [20]byte{}, DecodedAddress(testBech32))
}
