package reserve

import (
	"errors"
	"math/big"
	"sync"

	"bondchain/core/events"
	"bondchain/core/types"
	nativecommon "bondchain/native/common"
)

var (
	errNilLedger           = errors.New("reserve engine: ledger not configured")
	errSwapLocked          = errors.New("reserve engine: swap already in progress")
	errSingleOutput        = errors.New("reserve engine: exactly one output amount must be nonzero")
	errInvalidRecipient    = errors.New("reserve engine: invalid swap recipient")
	errInsufficientReserve = errors.New("reserve engine: output exceeds available reserve")
	errInvariantViolated   = errors.New("reserve engine: constant product invariant violated")
	errZeroInput           = errors.New("reserve engine: no input amount detected")
	errSamePair            = errors.New("reserve engine: pair tokens must differ")
	errUnauthorizedCaller  = errors.New("reserve engine: caller not authorized")
)

const moduleName = "reserve"

type reserveEvent struct {
	evt *types.Event
}

func (e reserveEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e reserveEvent) Event() *types.Event { return e.evt }

// Engine executes swaps and liquidity updates against the reserve ledger.
// Every public operation validates its preconditions in full before touching
// state, so a failed invocation leaves no partial effect.
type Engine struct {
	ledger  *Ledger
	asset   FungibleAsset
	emitter events.Emitter
	pauses  nativecommon.PauseView

	bank       [20]byte
	staking    [20]byte
	executable [20]byte

	swapMu sync.Mutex
}

// NewEngine constructs a swap engine over the supplied ledger. The asset
// capability must match the one backing the ledger's vault.
func NewEngine(ledger *Ledger, asset FungibleAsset) *Engine {
	return &Engine{
		ledger:  ledger,
		asset:   asset,
		emitter: events.NoopEmitter{},
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op
// implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the module pause switches honoured by mutating operations.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetBankAddress configures the caller allowed to drive liquidity updates.
func (e *Engine) SetBankAddress(addr [20]byte) {
	if e == nil {
		return
	}
	e.bank = addr
}

// SetStakingAddress configures the secondary caller allowed to remove
// liquidity.
func (e *Engine) SetStakingAddress(addr [20]byte) {
	if e == nil {
		return
	}
	e.staking = addr
}

// SetExecutableAddress configures the privileged caller allowed to rotate the
// bank address.
func (e *Engine) SetExecutableAddress(addr [20]byte) {
	if e == nil {
		return
	}
	e.executable = addr
}

// BankAddress returns the currently configured bank caller.
func (e *Engine) BankAddress() [20]byte {
	if e == nil {
		return [20]byte{}
	}
	return e.bank
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(reserveEvent{evt: event})
}

func (e *Engine) ready() error {
	if e == nil || e.ledger == nil {
		return errNilLedger
	}
	if e.asset == nil {
		return errNilAsset
	}
	return nil
}

// Reserves reports the pairwise reserves for (tokenA, tokenB). Read-only.
func (e *Engine) Reserves(tokenA, tokenB string) (*big.Int, *big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, nil, err
	}
	return e.ledger.Reserves(tokenA, tokenB)
}

// Swap pays out exactly one of amount0Out/amount1Out to the recipient and
// derives the realized input from the vault balance delta, enforcing that the
// reserve product does not decrease. The whole operation is guarded by a
// single non-reentrant lock.
func (e *Engine) Swap(amount0Out, amount1Out *big.Int, token0, token1 string, to [20]byte) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if !e.swapMu.TryLock() {
		return errSwapLocked
	}
	defer e.swapMu.Unlock()

	token0, err := normalizeToken(token0)
	if err != nil {
		return err
	}
	token1, err = normalizeToken(token1)
	if err != nil {
		return err
	}
	if token0 == token1 {
		return errSamePair
	}
	out0 := cloneOrZero(amount0Out)
	out1 := cloneOrZero(amount1Out)
	if out0.Sign() < 0 || out1.Sign() < 0 {
		return errInvalidAmount
	}
	if (out0.Sign() == 0) == (out1.Sign() == 0) {
		return errSingleOutput
	}
	if to == e.ledger.Vault() || to == ([20]byte{}) {
		return errInvalidRecipient
	}

	reserve0, reserve1, err := e.ledger.Reserves(token0, token1)
	if err != nil {
		return err
	}
	if out0.Cmp(reserve0) >= 0 && out0.Sign() > 0 {
		return errInsufficientReserve
	}
	if out1.Cmp(reserve1) >= 0 && out1.Sign() > 0 {
		return errInsufficientReserve
	}

	// The realized input is inferred from the post-payout balance delta:
	// current = oldReserve + (balance - amountOut) - lastSyncedReserve.
	// Balances are read up front so every precondition, including the
	// invariant, is checked before any transfer happens.
	current0, err := e.currentReserve(token0, reserve0, out0)
	if err != nil {
		return err
	}
	current1, err := e.currentReserve(token1, reserve1, out1)
	if err != nil {
		return err
	}

	oldProduct := new(big.Int).Mul(reserve0, reserve1)
	newProduct := new(big.Int).Mul(current0, current1)
	if newProduct.Cmp(oldProduct) < 0 {
		return errInvariantViolated
	}

	in0 := realizedInput(current0, reserve0, out0)
	in1 := realizedInput(current1, reserve1, out1)
	if in0.Sign() == 0 && in1.Sign() == 0 {
		return errZeroInput
	}

	vault := e.ledger.Vault()
	if out0.Sign() > 0 {
		if err := e.asset.Transfer(token0, vault, to, out0); err != nil {
			return err
		}
	}
	if out1.Sign() > 0 {
		if err := e.asset.Transfer(token1, vault, to, out1); err != nil {
			return err
		}
	}

	if err := e.applySwapSide(token0, token1, in0, out0); err != nil {
		return err
	}
	if err := e.applySwapSide(token1, token0, in1, out1); err != nil {
		return err
	}

	e.emit(newSwappedEvent(token0, token1, in0, in1, out0, out1, to))
	return nil
}

// currentReserve computes a token's post-payout reserve from the vault
// balance: oldReserve + balance - lastSynced - amountOut.
func (e *Engine) currentReserve(token string, oldReserve, amountOut *big.Int) (*big.Int, error) {
	balance, err := e.asset.BalanceOf(token, e.ledger.Vault())
	if err != nil {
		return nil, err
	}
	lastSynced, _, err := e.ledger.Totals(token)
	if err != nil {
		return nil, err
	}
	current := new(big.Int).Add(oldReserve, balance)
	current.Sub(current, lastSynced)
	current.Sub(current, amountOut)
	if current.Sign() < 0 {
		current.SetInt64(0)
	}
	return current, nil
}

// realizedInput is the positive excess of the current reserve over the old
// reserve minus the paid-out amount.
func realizedInput(current, oldReserve, amountOut *big.Int) *big.Int {
	floor := new(big.Int).Sub(oldReserve, amountOut)
	input := new(big.Int).Sub(current, floor)
	if input.Sign() < 0 {
		return big.NewInt(0)
	}
	return input
}

func (e *Engine) applySwapSide(token, partner string, amountIn, amountOut *big.Int) error {
	if amountOut.Sign() > 0 {
		if err := e.ledger.removeOneSide(amountOut, token, partner); err != nil {
			return err
		}
	}
	if amountIn.Sign() > 0 {
		if err := e.ledger.addOneSide(amountIn, token, partner); err != nil {
			return err
		}
	}
	return nil
}

// UpdateWhenAddLiquidity issues entries for both sides of a pair after the
// bank has deposited the amounts into the vault. Restricted to the bank
// caller.
func (e *Engine) UpdateWhenAddLiquidity(caller [20]byte, amountA, amountB *big.Int, tokenA, tokenB string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller != e.bank {
		return errUnauthorizedCaller
	}
	tokenA, err := normalizeToken(tokenA)
	if err != nil {
		return err
	}
	tokenB, err = normalizeToken(tokenB)
	if err != nil {
		return err
	}
	if tokenA == tokenB {
		return errSamePair
	}
	a := cloneOrZero(amountA)
	b := cloneOrZero(amountB)
	if a.Sign() < 0 || b.Sign() < 0 {
		return errInvalidAmount
	}
	if err := e.ledger.addOneSide(a, tokenA, tokenB); err != nil {
		return err
	}
	if err := e.ledger.addOneSide(b, tokenB, tokenA); err != nil {
		return err
	}
	e.emit(newLiquidityAddedEvent(tokenA, tokenB, a, b))
	return nil
}

// RemoveLiquidity pays the amount out of the vault to the recipient and
// resynchronizes the token's reserve. Restricted to the bank and staking
// callers.
func (e *Engine) RemoveLiquidity(caller, to [20]byte, token string, amount *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller != e.bank && caller != e.staking {
		return errUnauthorizedCaller
	}
	token, err := normalizeToken(token)
	if err != nil {
		return err
	}
	amt := cloneOrZero(amount)
	if amt.Sign() <= 0 {
		return errInvalidAmount
	}
	if err := e.asset.Transfer(token, e.ledger.Vault(), to, amt); err != nil {
		return err
	}
	if err := e.ledger.Sync(token); err != nil {
		return err
	}
	e.emit(newLiquidityRemovedEvent(token, "", amt, to))
	return nil
}

// RemoveLiquidityInsidePool burns tokenA's entries against tokenB for the
// withdrawn amount and pays it out of the vault. Restricted to the bank
// caller. An amount exceeding the pair's proportional allocation fails with
// an underflow; the engine never clamps.
func (e *Engine) RemoveLiquidityInsidePool(caller, to [20]byte, tokenA, tokenB string, amountA *big.Int) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if caller != e.bank {
		return errUnauthorizedCaller
	}
	tokenA, err := normalizeToken(tokenA)
	if err != nil {
		return err
	}
	tokenB, err = normalizeToken(tokenB)
	if err != nil {
		return err
	}
	if tokenA == tokenB {
		return errSamePair
	}
	amt := cloneOrZero(amountA)
	if amt.Sign() <= 0 {
		return errInvalidAmount
	}
	// Check the proportional allocation before paying out so a failed
	// removal has no effect.
	if err := e.ledger.checkRemoveOneSide(amt, tokenA, tokenB); err != nil {
		return err
	}
	if err := e.asset.Transfer(tokenA, e.ledger.Vault(), to, amt); err != nil {
		return err
	}
	if err := e.ledger.removeOneSide(amt, tokenA, tokenB); err != nil {
		return err
	}
	e.emit(newLiquidityRemovedEvent(tokenA, tokenB, amt, to))
	return nil
}

// Sync reconciles the token's recorded reserve with the vault balance. Public
// and idempotent.
func (e *Engine) Sync(token string) error {
	if err := e.ready(); err != nil {
		return err
	}
	token, err := normalizeToken(token)
	if err != nil {
		return err
	}
	if err := e.ledger.Sync(token); err != nil {
		return err
	}
	totalReserve, _, err := e.ledger.Totals(token)
	if err != nil {
		return err
	}
	e.emit(newSyncedEvent(token, totalReserve))
	return nil
}

// UpdateBankAddress rotates the bank caller. Restricted to the executable
// caller.
func (e *Engine) UpdateBankAddress(caller, newBank [20]byte) error {
	if e == nil {
		return errNilLedger
	}
	if caller != e.executable {
		return errUnauthorizedCaller
	}
	e.bank = newBank
	return nil
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
