package reserve

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	nativetoken "bondchain/native/token"
)

var (
	errNilStore         = errors.New("reserve ledger: store not configured")
	errNilAsset         = errors.New("reserve ledger: asset capability not configured")
	errInvalidToken     = errors.New("reserve ledger: invalid token symbol")
	errInvalidAmount    = errors.New("reserve ledger: amount must not be negative")
	errEmptyReserve     = errors.New("reserve ledger: token reserve is empty")
	errEntriesUnderflow = errors.New("reserve ledger: amount exceeds pair allocation")
)

// Storage abstracts the subset of state manager functionality required by the
// reserve ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

// FungibleAsset is the external token custody capability. Transfers either
// complete or are declined; a declined transfer aborts the invoking
// operation.
type FungibleAsset interface {
	BalanceOf(token string, addr [20]byte) (*big.Int, error)
	Transfer(token string, from, to [20]byte, amount *big.Int) error
}

var (
	tokenReservePrefix = []byte("reserve/token/")
	pairEntriesPrefix  = []byte("reserve/entries/")
)

// storedTokenReserve is the RLP-friendly persisted form of a token's totals.
type storedTokenReserve struct {
	TotalReserve string
	TotalEntries string
}

// Ledger tracks, per token, the last synchronized real reserve and the sum of
// virtual shares ("entries") issued against it, plus the per-ordered-pair
// entry counts. Entries behave like LP shares scoped to a token rather than
// to a pool token, so one token's reserve can be split across many partner
// pairs without minting a share token per pair.
type Ledger struct {
	store Storage
	asset FungibleAsset
	vault [20]byte
}

// NewLedger constructs a reserve ledger bound to the provided storage backend
// and token custody capability. The vault address holds the real balances the
// sync operation reconciles against.
func NewLedger(store Storage, asset FungibleAsset, vault [20]byte) *Ledger {
	return &Ledger{store: store, asset: asset, vault: vault}
}

// Vault returns the custody address whose balances back the ledger.
func (l *Ledger) Vault() [20]byte {
	if l == nil {
		return [20]byte{}
	}
	return l.vault
}

func tokenKey(token string) []byte {
	buf := make([]byte, 0, len(tokenReservePrefix)+len(token))
	buf = append(buf, tokenReservePrefix...)
	buf = append(buf, token...)
	return buf
}

func pairKey(tokenA, tokenB string) []byte {
	buf := make([]byte, 0, len(pairEntriesPrefix)+len(tokenA)+1+len(tokenB))
	buf = append(buf, pairEntriesPrefix...)
	buf = append(buf, tokenA...)
	buf = append(buf, '/')
	buf = append(buf, tokenB...)
	return buf
}

func parseStoredAmount(stored string) (*big.Int, error) {
	trimmed := strings.TrimSpace(stored)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("reserve ledger: corrupt amount %q", stored)
	}
	return value, nil
}

// normalizeToken canonicalises a pool symbol through the token ledger's
// normal form so aliased casings of one asset share a single reserve row.
func normalizeToken(symbol string) (string, error) {
	normalized, err := nativetoken.NormalizeSymbol(symbol)
	if err != nil {
		return "", errInvalidToken
	}
	return normalized, nil
}

// Totals returns the last synchronized reserve and the total entries recorded
// for the token. Unknown tokens report zero for both.
func (l *Ledger) Totals(token string) (*big.Int, *big.Int, error) {
	if l == nil || l.store == nil {
		return nil, nil, errNilStore
	}
	token, err := normalizeToken(token)
	if err != nil {
		return nil, nil, err
	}
	var stored storedTokenReserve
	ok, err := l.store.KVGet(tokenKey(token), &stored)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return big.NewInt(0), big.NewInt(0), nil
	}
	totalReserve, err := parseStoredAmount(stored.TotalReserve)
	if err != nil {
		return nil, nil, err
	}
	totalEntries, err := parseStoredAmount(stored.TotalEntries)
	if err != nil {
		return nil, nil, err
	}
	return totalReserve, totalEntries, nil
}

func (l *Ledger) putTotals(token string, totalReserve, totalEntries *big.Int) error {
	return l.store.KVPut(tokenKey(token), storedTokenReserve{
		TotalReserve: totalReserve.String(),
		TotalEntries: totalEntries.String(),
	})
}

// PairEntries returns the virtual shares of tokenA attributable to pool
// partner tokenB. The mapping is not symmetric.
func (l *Ledger) PairEntries(tokenA, tokenB string) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, errNilStore
	}
	tokenA, err := normalizeToken(tokenA)
	if err != nil {
		return nil, err
	}
	tokenB, err = normalizeToken(tokenB)
	if err != nil {
		return nil, err
	}
	var stored string
	ok, err := l.store.KVGet(pairKey(tokenA, tokenB), &stored)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return parseStoredAmount(stored)
}

func (l *Ledger) putPairEntries(tokenA, tokenB string, entries *big.Int) error {
	return l.store.KVPut(pairKey(tokenA, tokenB), entries.String())
}

// reserveFor computes tokenA's reserve attributable to the pair with tokenB:
// entries[A][B] * totalReserve[A] / totalEntries[A], truncating. A token with
// zero total entries has a defined reserve of zero.
func (l *Ledger) reserveFor(tokenA, tokenB string) (*big.Int, error) {
	totalReserve, totalEntries, err := l.Totals(tokenA)
	if err != nil {
		return nil, err
	}
	if totalEntries.Sign() == 0 {
		return big.NewInt(0), nil
	}
	entries, err := l.PairEntries(tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	reserve := new(big.Int).Mul(entries, totalReserve)
	return reserve.Quo(reserve, totalEntries), nil
}

// Reserves computes the pairwise reserves for (tokenA, tokenB). Each side is
// derived independently; neither read has side effects.
func (l *Ledger) Reserves(tokenA, tokenB string) (*big.Int, *big.Int, error) {
	reserveA, err := l.reserveFor(tokenA, tokenB)
	if err != nil {
		return nil, nil, err
	}
	reserveB, err := l.reserveFor(tokenB, tokenA)
	if err != nil {
		return nil, nil, err
	}
	return reserveA, reserveB, nil
}

// addOneSide issues entries of tokenA against partner tokenB in proportion to
// the amount joining the reserve, then resynchronizes the token's total
// reserve against the vault balance. The sync, rather than an arithmetic
// increment, absorbs value already transferred in before the call.
func (l *Ledger) addOneSide(amount *big.Int, tokenA, tokenB string) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	tokenA, err := normalizeToken(tokenA)
	if err != nil {
		return err
	}
	tokenB, err = normalizeToken(tokenB)
	if err != nil {
		return err
	}
	totalReserve, totalEntries, err := l.Totals(tokenA)
	if err != nil {
		return err
	}
	oldEntries, err := l.PairEntries(tokenA, tokenB)
	if err != nil {
		return err
	}
	newEntries := new(big.Int)
	if totalReserve.Sign() == 0 {
		// Bootstrap: first liquidity prices one entry per token unit.
		newEntries.Set(amount)
	} else {
		minted := new(big.Int).Mul(amount, totalEntries)
		minted.Quo(minted, totalReserve)
		newEntries.Add(oldEntries, minted)
	}
	updatedTotal := new(big.Int).Sub(totalEntries, oldEntries)
	updatedTotal.Add(updatedTotal, newEntries)
	if err := l.putPairEntries(tokenA, tokenB, newEntries); err != nil {
		return err
	}
	if err := l.putTotals(tokenA, totalReserve, updatedTotal); err != nil {
		return err
	}
	return l.Sync(tokenA)
}

// checkRemoveOneSide verifies that removing the amount would not underflow
// the pair's allocation, without mutating anything.
func (l *Ledger) checkRemoveOneSide(amount *big.Int, tokenA, tokenB string) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	tokenA, err := normalizeToken(tokenA)
	if err != nil {
		return err
	}
	tokenB, err = normalizeToken(tokenB)
	if err != nil {
		return err
	}
	totalReserve, totalEntries, err := l.Totals(tokenA)
	if err != nil {
		return err
	}
	if totalReserve.Sign() == 0 {
		return errEmptyReserve
	}
	oldEntries, err := l.PairEntries(tokenA, tokenB)
	if err != nil {
		return err
	}
	burned := new(big.Int).Mul(amount, totalEntries)
	burned.Quo(burned, totalReserve)
	if burned.Cmp(oldEntries) > 0 {
		return errEntriesUnderflow
	}
	return nil
}

// removeOneSide burns entries of tokenA against partner tokenB in proportion
// to the amount leaving the reserve, then resynchronizes the total reserve.
// Removing more than the pair's proportional allocation is an underflow and
// fails; the ledger never clamps.
func (l *Ledger) removeOneSide(amount *big.Int, tokenA, tokenB string) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	if amount == nil || amount.Sign() < 0 {
		return errInvalidAmount
	}
	tokenA, err := normalizeToken(tokenA)
	if err != nil {
		return err
	}
	tokenB, err = normalizeToken(tokenB)
	if err != nil {
		return err
	}
	totalReserve, totalEntries, err := l.Totals(tokenA)
	if err != nil {
		return err
	}
	if totalReserve.Sign() == 0 {
		return errEmptyReserve
	}
	oldEntries, err := l.PairEntries(tokenA, tokenB)
	if err != nil {
		return err
	}
	burned := new(big.Int).Mul(amount, totalEntries)
	burned.Quo(burned, totalReserve)
	if burned.Cmp(oldEntries) > 0 {
		return errEntriesUnderflow
	}
	newEntries := new(big.Int).Sub(oldEntries, burned)
	updatedTotal := new(big.Int).Sub(totalEntries, oldEntries)
	updatedTotal.Add(updatedTotal, newEntries)
	if err := l.putPairEntries(tokenA, tokenB, newEntries); err != nil {
		return err
	}
	if err := l.putTotals(tokenA, totalReserve, updatedTotal); err != nil {
		return err
	}
	return l.Sync(tokenA)
}

// Sync sets the token's recorded total reserve to the vault's current real
// balance. Idempotent; reconciles bookkeeping after any external transfer.
func (l *Ledger) Sync(token string) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	if l.asset == nil {
		return errNilAsset
	}
	token, err := normalizeToken(token)
	if err != nil {
		return err
	}
	balance, err := l.asset.BalanceOf(token, l.vault)
	if err != nil {
		return err
	}
	_, totalEntries, err := l.Totals(token)
	if err != nil {
		return err
	}
	return l.putTotals(token, balance, totalEntries)
}
