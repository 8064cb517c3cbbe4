package reserve

import (
	"errors"
	"math/big"
	"testing"

	"bondchain/core/state"
	"bondchain/native/token"
	"bondchain/storage"
)

func testAddr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func newTestLedger(t *testing.T) (*Ledger, *token.Ledger, [20]byte) {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	tokens := token.NewLedger(manager)
	vault := testAddr(0x0f)
	return NewLedger(manager, tokens, vault), tokens, vault
}

func mustMint(t *testing.T, tokens *token.Ledger, symbol string, to [20]byte, amount int64) {
	t.Helper()
	if err := tokens.Mint(symbol, to, big.NewInt(amount)); err != nil {
		t.Fatalf("mint %s: %v", symbol, err)
	}
}

func TestTotalsUnknownTokenZero(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	totalReserve, totalEntries, err := ledger.Totals("TOKA")
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totalReserve.Sign() != 0 || totalEntries.Sign() != 0 {
		t.Fatalf("expected zero totals, got %s/%s", totalReserve, totalEntries)
	}
}

func TestAddOneSideBootstrap(t *testing.T) {
	ledger, tokens, vault := newTestLedger(t)
	mustMint(t, tokens, "TOKA", vault, 1000)

	if err := ledger.addOneSide(big.NewInt(1000), "TOKA", "TOKB"); err != nil {
		t.Fatalf("addOneSide: %v", err)
	}
	totalReserve, totalEntries, err := ledger.Totals("TOKA")
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totalReserve.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected synced reserve 1000, got %s", totalReserve)
	}
	if totalEntries.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected bootstrap entries 1000, got %s", totalEntries)
	}
	entries, err := ledger.PairEntries("TOKA", "TOKB")
	if err != nil {
		t.Fatalf("pair entries: %v", err)
	}
	if entries.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("expected pair entries 1000, got %s", entries)
	}
}

func TestAddOneSideProportionalMint(t *testing.T) {
	ledger, tokens, vault := newTestLedger(t)
	mustMint(t, tokens, "TOKA", vault, 1000)
	if err := ledger.addOneSide(big.NewInt(1000), "TOKA", "TOKB"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	// Second deposit against a different partner mints entries at the
	// current reserve-per-entry rate.
	mustMint(t, tokens, "TOKA", vault, 500)
	if err := ledger.addOneSide(big.NewInt(500), "TOKA", "TOKC"); err != nil {
		t.Fatalf("addOneSide: %v", err)
	}

	entriesB, err := ledger.PairEntries("TOKA", "TOKB")
	if err != nil {
		t.Fatalf("pair entries B: %v", err)
	}
	entriesC, err := ledger.PairEntries("TOKA", "TOKC")
	if err != nil {
		t.Fatalf("pair entries C: %v", err)
	}
	_, totalEntries, err := ledger.Totals("TOKA")
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if entriesB.Cmp(big.NewInt(1000)) != 0 || entriesC.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("unexpected pair entries %s/%s", entriesB, entriesC)
	}
	sum := new(big.Int).Add(entriesB, entriesC)
	if sum.Cmp(totalEntries) != 0 {
		t.Fatalf("pair entries %s do not sum to total %s", sum, totalEntries)
	}
}

func TestReservesSplitAcrossPartners(t *testing.T) {
	ledger, tokens, vault := newTestLedger(t)
	mustMint(t, tokens, "TOKA", vault, 1000)
	if err := ledger.addOneSide(big.NewInt(1000), "TOKA", "TOKB"); err != nil {
		t.Fatalf("add B: %v", err)
	}
	mustMint(t, tokens, "TOKA", vault, 500)
	if err := ledger.addOneSide(big.NewInt(500), "TOKA", "TOKC"); err != nil {
		t.Fatalf("add C: %v", err)
	}

	reserveB, err := ledger.reserveFor("TOKA", "TOKB")
	if err != nil {
		t.Fatalf("reserveFor B: %v", err)
	}
	reserveC, err := ledger.reserveFor("TOKA", "TOKC")
	if err != nil {
		t.Fatalf("reserveFor C: %v", err)
	}
	if reserveB.Cmp(big.NewInt(1000)) != 0 || reserveC.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("unexpected split %s/%s", reserveB, reserveC)
	}
}

func TestRemoveOneSideBurnsProportionally(t *testing.T) {
	ledger, tokens, vault := newTestLedger(t)
	mustMint(t, tokens, "TOKA", vault, 1000)
	if err := ledger.addOneSide(big.NewInt(1000), "TOKA", "TOKB"); err != nil {
		t.Fatalf("add: %v", err)
	}

	// The payout happens before the bookkeeping update.
	if err := tokens.Transfer("TOKA", vault, testAddr(1), big.NewInt(400)); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if err := ledger.removeOneSide(big.NewInt(400), "TOKA", "TOKB"); err != nil {
		t.Fatalf("removeOneSide: %v", err)
	}

	entries, err := ledger.PairEntries("TOKA", "TOKB")
	if err != nil {
		t.Fatalf("pair entries: %v", err)
	}
	if entries.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("expected 600 entries after burn, got %s", entries)
	}
	totalReserve, _, err := ledger.Totals("TOKA")
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totalReserve.Cmp(big.NewInt(600)) != 0 {
		t.Fatalf("expected synced reserve 600, got %s", totalReserve)
	}
}

func TestRemoveOneSideUnderflowFails(t *testing.T) {
	ledger, tokens, vault := newTestLedger(t)
	mustMint(t, tokens, "TOKA", vault, 1000)
	if err := ledger.addOneSide(big.NewInt(1000), "TOKA", "TOKB"); err != nil {
		t.Fatalf("add B: %v", err)
	}
	mustMint(t, tokens, "TOKA", vault, 500)
	if err := ledger.addOneSide(big.NewInt(500), "TOKA", "TOKC"); err != nil {
		t.Fatalf("add C: %v", err)
	}

	// TOKC only backs 500 of the reserve; draining more must fail rather
	// than clamp.
	err := ledger.removeOneSide(big.NewInt(800), "TOKA", "TOKC")
	if !errors.Is(err, errEntriesUnderflow) {
		t.Fatalf("expected entries underflow, got %v", err)
	}
	entries, err := ledger.PairEntries("TOKA", "TOKC")
	if err != nil {
		t.Fatalf("pair entries: %v", err)
	}
	if entries.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("failed removal mutated entries: %s", entries)
	}
}

func TestRemoveOneSideEmptyReserve(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	err := ledger.removeOneSide(big.NewInt(10), "TOKA", "TOKB")
	if !errors.Is(err, errEmptyReserve) {
		t.Fatalf("expected empty reserve error, got %v", err)
	}
}

func TestSyncTracksVaultBalance(t *testing.T) {
	ledger, tokens, vault := newTestLedger(t)
	mustMint(t, tokens, "TOKA", vault, 1000)
	if err := ledger.addOneSide(big.NewInt(1000), "TOKA", "TOKB"); err != nil {
		t.Fatalf("add: %v", err)
	}

	// A donation raises the vault balance without touching entries.
	mustMint(t, tokens, "TOKA", vault, 250)
	if err := ledger.Sync("TOKA"); err != nil {
		t.Fatalf("sync: %v", err)
	}
	totalReserve, totalEntries, err := ledger.Totals("TOKA")
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totalReserve.Cmp(big.NewInt(1250)) != 0 {
		t.Fatalf("expected reserve 1250, got %s", totalReserve)
	}
	if totalEntries.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("sync mutated entries: %s", totalEntries)
	}
}

func TestInvalidSymbolsRejected(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	if _, _, err := ledger.Totals("TOK/A"); !errors.Is(err, errInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if _, _, err := ledger.Totals("  "); !errors.Is(err, errInvalidToken) {
		t.Fatalf("expected invalid token for blank symbol, got %v", err)
	}
}

func TestSymbolCasingSharesOneReserveRow(t *testing.T) {
	ledger, tokens, vault := newTestLedger(t)
	mustMint(t, tokens, "TOKA", vault, 1000)

	// Deposits recorded under a lowercased alias land on the canonical row.
	if err := ledger.addOneSide(big.NewInt(1000), "toka", "tokb"); err != nil {
		t.Fatalf("addOneSide: %v", err)
	}
	totalReserve, totalEntries, err := ledger.Totals("TOKA")
	if err != nil {
		t.Fatalf("totals: %v", err)
	}
	if totalReserve.Cmp(big.NewInt(1000)) != 0 || totalEntries.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("aliased deposit missed canonical row: %s/%s", totalReserve, totalEntries)
	}
	entries, err := ledger.PairEntries("TOKA", "TOKB")
	if err != nil {
		t.Fatalf("pair entries: %v", err)
	}
	if entries.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("aliased deposit missed canonical pair: %s", entries)
	}
}
