package token

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	errNilStore            = errors.New("token ledger: store not configured")
	errInvalidSymbol       = errors.New("token ledger: invalid token symbol")
	errNegativeAmount      = errors.New("token ledger: amount must not be negative")
	errInsufficientBalance = errors.New("token ledger: insufficient balance")
)

// Storage abstracts the subset of state manager functionality required by the
// token ledger.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
}

var balancePrefix = []byte("token/balance/")

// NormalizeSymbol canonicalises a token symbol to its trimmed uppercase form.
func NormalizeSymbol(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" || len(trimmed) > 16 {
		return "", errInvalidSymbol
	}
	for _, r := range trimmed {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", errInvalidSymbol
		}
	}
	return trimmed, nil
}

// Ledger tracks fungible token balances per (symbol, address) pair. It backs
// the fungible-asset capability consumed by the reserve and auction engines.
type Ledger struct {
	store Storage
}

// NewLedger constructs a ledger bound to the provided storage backend.
func NewLedger(store Storage) *Ledger {
	return &Ledger{store: store}
}

func balanceKey(symbol string, addr [20]byte) []byte {
	encoded := hex.EncodeToString(addr[:])
	buf := make([]byte, 0, len(balancePrefix)+len(symbol)+1+len(encoded))
	buf = append(buf, balancePrefix...)
	buf = append(buf, symbol...)
	buf = append(buf, '/')
	buf = append(buf, encoded...)
	return buf
}

// BalanceOf returns the balance held by addr for the supplied token. Unknown
// accounts hold zero.
func (l *Ledger) BalanceOf(symbol string, addr [20]byte) (*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, errNilStore
	}
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	var stored string
	ok, err := l.store.KVGet(balanceKey(normalized, addr), &stored)
	if err != nil {
		return nil, err
	}
	if !ok || strings.TrimSpace(stored) == "" {
		return big.NewInt(0), nil
	}
	balance, ok := new(big.Int).SetString(stored, 10)
	if !ok {
		return nil, fmt.Errorf("token ledger: corrupt balance %q", stored)
	}
	return balance, nil
}

func (l *Ledger) putBalance(symbol string, addr [20]byte, balance *big.Int) error {
	return l.store.KVPut(balanceKey(symbol, addr), balance.String())
}

// Transfer moves amount of the supplied token between accounts. A zero amount
// is a no-op; the transfer fails when the sender balance is insufficient.
func (l *Ledger) Transfer(symbol string, from, to [20]byte, amount *big.Int) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return errNegativeAmount
	}
	fromBalance, err := l.BalanceOf(normalized, from)
	if err != nil {
		return err
	}
	if fromBalance.Cmp(amount) < 0 {
		return errInsufficientBalance
	}
	toBalance, err := l.BalanceOf(normalized, to)
	if err != nil {
		return err
	}
	if err := l.putBalance(normalized, from, new(big.Int).Sub(fromBalance, amount)); err != nil {
		return err
	}
	return l.putBalance(normalized, to, new(big.Int).Add(toBalance, amount))
}

// Mint credits amount of the supplied token to the recipient. Used for
// genesis allocations and tests.
func (l *Ledger) Mint(symbol string, to [20]byte, amount *big.Int) error {
	if l == nil || l.store == nil {
		return errNilStore
	}
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return errNegativeAmount
	}
	balance, err := l.BalanceOf(normalized, to)
	if err != nil {
		return err
	}
	return l.putBalance(normalized, to, new(big.Int).Add(balance, amount))
}
