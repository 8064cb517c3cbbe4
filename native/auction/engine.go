package auction

import (
	"errors"
	"math/big"
	"strings"
	"time"

	"bondchain/core/events"
	"bondchain/core/types"
	nativecommon "bondchain/native/common"
)

var (
	errNilEngineStore     = errors.New("auction engine: store not configured")
	errNilCurrency        = errors.New("auction engine: currency capability not configured")
	errNilPositions       = errors.New("auction engine: position capability not configured")
	errBoundsUnset        = errors.New("auction engine: duration bounds not configured")
	errDurationOutOfRange = errors.New("auction engine: duration outside configured bounds")
	errAmountOrdering     = errors.New("auction engine: min amount must be positive and below max")
	errInvalidCurrency    = errors.New("auction engine: currency symbol required")
	errEmptyProduct       = errors.New("auction engine: product must contain at least one position")
	errAuctionNotFound    = errors.New("auction engine: auction not found")
	errAuctionExpired     = errors.New("auction engine: auction expired")
	errAuctionNotActive   = errors.New("auction engine: auction not in started state")
	errOwnerBid           = errors.New("auction engine: owner may not bid on own auction")
	errNotOwner           = errors.New("auction engine: caller is not the auction owner")
	errUnauthorized       = errors.New("auction engine: caller not authorized")
	errInvalidBounds      = errors.New("auction engine: min duration must be below max duration")
)

const moduleName = "auction"

// CurrencyTransfer is the fungible-asset capability used to settle the final
// price. A declined transfer aborts the invoking operation.
type CurrencyTransfer interface {
	Transfer(token string, from, to [20]byte, amount *big.Int) error
}

// PositionCustody is the tokenized-position capability used to escrow and
// release auction products. A declined transfer aborts the invoking
// operation.
type PositionCustody interface {
	Transfer(class string, id uint64, from, to [20]byte) error
}

type auctionEvent struct {
	evt *types.Event
}

func (e auctionEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e auctionEvent) Event() *types.Event { return e.evt }

// Engine drives the Dutch auction state machine: Started transitions exactly
// once to Completed (first valid bid) or Cancelled (owner cancellation), both
// terminal.
type Engine struct {
	store      *Store
	currency   CurrencyTransfer
	positions  PositionCustody
	escrow     [20]byte
	executable [20]byte
	emitter    events.Emitter
	pauses     nativecommon.PauseView
	nowFn      func() int64
}

// NewEngine constructs an auction engine over the supplied store. The escrow
// address holds auctioned positions while their auction is live.
func NewEngine(store *Store, currency CurrencyTransfer, positions PositionCustody, escrow [20]byte) *Engine {
	return &Engine{
		store:     store,
		currency:  currency,
		positions: positions,
		escrow:    escrow,
		emitter:   events.NoopEmitter{},
		nowFn:     func() int64 { return time.Now().Unix() },
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

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetExecutableAddress configures the privileged caller allowed to adjust the
// global duration bounds.
func (e *Engine) SetExecutableAddress(addr [20]byte) {
	if e == nil {
		return
	}
	e.executable = addr
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(auctionEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) ready() error {
	if e == nil || e.store == nil {
		return errNilEngineStore
	}
	if e.currency == nil {
		return errNilCurrency
	}
	if e.positions == nil {
		return errNilPositions
	}
	return nil
}

// CreateAuction escrows the product and persists a new Started auction with
// the next sequential id. A zero starting time defaults to the current time.
func (e *Engine) CreateAuction(owner [20]byte, startTime, duration int64, currency string, minAmount, maxAmount *big.Int, product []PositionTransfer) (*Auction, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	minDuration, maxDuration, ok, err := e.store.DurationBounds()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errBoundsUnset
	}
	if duration < minDuration || duration >= maxDuration {
		return nil, errDurationOutOfRange
	}
	if minAmount == nil || maxAmount == nil || minAmount.Sign() <= 0 || minAmount.Cmp(maxAmount) >= 0 {
		return nil, errAmountOrdering
	}
	if strings.TrimSpace(currency) == "" {
		return nil, errInvalidCurrency
	}
	if len(product) == 0 {
		return nil, errEmptyProduct
	}
	if startTime <= 0 {
		startTime = e.now()
	}

	for _, item := range product {
		if err := e.positions.Transfer(item.Class, item.PositionID, owner, e.escrow); err != nil {
			return nil, err
		}
	}

	id, err := e.store.NextID()
	if err != nil {
		return nil, err
	}
	record := &Auction{
		ID:        id,
		Owner:     owner,
		StartTime: startTime,
		Duration:  duration,
		Currency:  strings.TrimSpace(currency),
		MinAmount: new(big.Int).Set(minAmount),
		MaxAmount: new(big.Int).Set(maxAmount),
		State:     StateStarted,
		Product:   append([]PositionTransfer(nil), product...),
	}
	if err := e.store.Put(record, true); err != nil {
		return nil, err
	}
	e.emit(newStartedEvent(record))
	return record.Clone(), nil
}

// CurrentPrice computes the linearly decayed price at the current time. The
// price is only defined strictly before expiry.
func (e *Engine) CurrentPrice(id uint64) (*big.Int, error) {
	if e == nil || e.store == nil {
		return nil, errNilEngineStore
	}
	record, ok, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	if !ok || record.StartTime == 0 {
		return nil, errAuctionNotFound
	}
	return priceAt(record, e.now())
}

// priceAt evaluates maxAmount - (maxAmount-minAmount)*t/duration with
// truncating division. Elapsed time before the start clamps to zero.
func priceAt(record *Auction, now int64) (*big.Int, error) {
	elapsed := now - record.StartTime
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed >= record.Duration {
		return nil, errAuctionExpired
	}
	spread := new(big.Int).Sub(record.MaxAmount, record.MinAmount)
	decay := spread.Mul(spread, big.NewInt(elapsed))
	decay.Quo(decay, big.NewInt(record.Duration))
	return new(big.Int).Sub(record.MaxAmount, decay), nil
}

// Bid settles the auction at the current price for the first valid bidder:
// the final price moves from bidder to owner and the escrowed product is
// released to the bidder. The auction transitions to Completed.
func (e *Engine) Bid(caller [20]byte, id uint64) (*Auction, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	record, ok, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	if !ok || record.StartTime == 0 {
		return nil, errAuctionNotFound
	}
	if caller == record.Owner {
		return nil, errOwnerBid
	}
	now := e.now()
	if now > record.StartTime+record.Duration {
		return nil, errAuctionExpired
	}
	if record.State != StateStarted {
		return nil, errAuctionNotActive
	}
	price, err := priceAt(record, now)
	if err != nil {
		return nil, err
	}

	// Value moves before the terminal record write; a failed Put below is
	// fatal to the node rather than unwound.
	if err := e.currency.Transfer(record.Currency, caller, record.Owner, price); err != nil {
		return nil, err
	}
	for _, item := range record.Product {
		if err := e.positions.Transfer(item.Class, item.PositionID, e.escrow, caller); err != nil {
			return nil, err
		}
	}

	record.State = StateCompleted
	record.Bidder = caller
	record.EndTime = now
	record.FinalPrice = price
	if err := e.store.Put(record, false); err != nil {
		return nil, err
	}
	e.emit(newBidEvent(record))
	e.emit(newCompletedEvent(record))
	return record.Clone(), nil
}

// CancelAuction returns the escrowed product to the owner and transitions the
// auction to Cancelled. Only the owner may cancel, and only while the auction
// is Started; expiry does not lock cancellation out.
func (e *Engine) CancelAuction(caller [20]byte, id uint64) (*Auction, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	record, ok, err := e.store.Get(id)
	if err != nil {
		return nil, err
	}
	if !ok || record.StartTime == 0 {
		return nil, errAuctionNotFound
	}
	if caller != record.Owner {
		return nil, errNotOwner
	}
	if record.State != StateStarted {
		return nil, errAuctionNotActive
	}

	// Same ordering as Bid: the product returns before the record write.
	for _, item := range record.Product {
		if err := e.positions.Transfer(item.Class, item.PositionID, e.escrow, record.Owner); err != nil {
			return nil, err
		}
	}

	record.State = StateCancelled
	record.EndTime = e.now()
	if err := e.store.Put(record, false); err != nil {
		return nil, err
	}
	e.emit(newCancelledEvent(record))
	return record.Clone(), nil
}

// GetAuction returns the stored record for the identifier.
func (e *Engine) GetAuction(id uint64) (*Auction, bool, error) {
	if e == nil || e.store == nil {
		return nil, false, errNilEngineStore
	}
	record, ok, err := e.store.Get(id)
	if err != nil || !ok {
		return nil, false, err
	}
	return record.Clone(), true, nil
}

// AuctionIDs returns every auction identifier in creation order.
func (e *Engine) AuctionIDs() ([]uint64, error) {
	if e == nil || e.store == nil {
		return nil, errNilEngineStore
	}
	return e.store.IDs()
}

// SetMinDuration adjusts the global minimum auction duration. Restricted to
// the executable caller.
func (e *Engine) SetMinDuration(caller [20]byte, minDuration int64) error {
	if e == nil || e.store == nil {
		return errNilEngineStore
	}
	if caller != e.executable {
		return errUnauthorized
	}
	_, maxDuration, ok, err := e.store.DurationBounds()
	if err != nil {
		return err
	}
	if ok && minDuration >= maxDuration {
		return errInvalidBounds
	}
	if !ok {
		return errBoundsUnset
	}
	return e.store.PutDurationBounds(minDuration, maxDuration)
}

// SetMaxDuration adjusts the global maximum auction duration. Restricted to
// the executable caller.
func (e *Engine) SetMaxDuration(caller [20]byte, maxDuration int64) error {
	if e == nil || e.store == nil {
		return errNilEngineStore
	}
	if caller != e.executable {
		return errUnauthorized
	}
	minDuration, _, ok, err := e.store.DurationBounds()
	if err != nil {
		return err
	}
	if !ok {
		minDuration = 0
	}
	if maxDuration <= minDuration {
		return errInvalidBounds
	}
	return e.store.PutDurationBounds(minDuration, maxDuration)
}

// InitDurationBounds seeds the duration window at startup when none has been
// persisted yet. Existing bounds win over the supplied defaults.
func (e *Engine) InitDurationBounds(minDuration, maxDuration int64) error {
	if e == nil || e.store == nil {
		return errNilEngineStore
	}
	if maxDuration <= minDuration || minDuration < 0 {
		return errInvalidBounds
	}
	_, _, ok, err := e.store.DurationBounds()
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return e.store.PutDurationBounds(minDuration, maxDuration)
}
