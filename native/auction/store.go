package auction

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
)

var (
	errNilStore       = errors.New("auction store: store not configured")
	errCorruptRecord  = errors.New("auction store: corrupt record")
	errSequenceExceed = errors.New("auction store: id sequence exhausted")
)

// Storage abstracts the subset of state manager functionality required by the
// auction store.
type Storage interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVAppend(key []byte, value []byte) error
	KVGetList(key []byte, out interface{}) error
}

var (
	auctionRecordPrefix = []byte("auction/record/")
	auctionIndexKey     = []byte("auction/index")
	auctionSequenceKey  = []byte("auction/sequence")
	auctionBoundsKey    = []byte("auction/duration_bounds")
)

type storedPositionTransfer struct {
	Class      string
	PositionID uint64
}

type storedAuction struct {
	ID         uint64
	Owner      [20]byte
	StartTime  uint64
	Duration   uint64
	Currency   string
	MinAmount  string
	MaxAmount  string
	State      uint8
	Bidder     [20]byte
	EndTime    uint64
	FinalPrice string
	Product    []storedPositionTransfer
}

type storedBounds struct {
	MinDuration uint64
	MaxDuration uint64
}

// Store persists auction records, the monotonic id sequence, the id index and
// the global duration bounds. Only the auction engine writes through it.
type Store struct {
	store Storage
}

// NewStore constructs an auction store bound to the provided storage backend.
func NewStore(store Storage) *Store {
	return &Store{store: store}
}

func recordKey(id uint64) []byte {
	encoded := strconv.FormatUint(id, 10)
	buf := make([]byte, 0, len(auctionRecordPrefix)+len(encoded))
	buf = append(buf, auctionRecordPrefix...)
	buf = append(buf, encoded...)
	return buf
}

// NextID reserves and returns the next sequential auction identifier,
// starting at 1. Identifiers are never reused.
func (s *Store) NextID() (uint64, error) {
	if s == nil || s.store == nil {
		return 0, errNilStore
	}
	var current uint64
	if _, err := s.store.KVGet(auctionSequenceKey, &current); err != nil {
		return 0, err
	}
	if current == math.MaxUint64 {
		return 0, errSequenceExceed
	}
	next := current + 1
	if err := s.store.KVPut(auctionSequenceKey, next); err != nil {
		return 0, err
	}
	return next, nil
}

// Put persists the auction record and, for fresh records, appends the id to
// the index.
func (s *Store) Put(a *Auction, fresh bool) error {
	if s == nil || s.store == nil {
		return errNilStore
	}
	if a == nil {
		return fmt.Errorf("auction store: record must not be nil")
	}
	stored, err := toStoredAuction(a)
	if err != nil {
		return err
	}
	if err := s.store.KVPut(recordKey(a.ID), stored); err != nil {
		return err
	}
	if !fresh {
		return nil
	}
	encoded, err := rlp.EncodeToBytes(a.ID)
	if err != nil {
		return err
	}
	return s.store.KVAppend(auctionIndexKey, encoded)
}

// Get retrieves an auction record by identifier.
func (s *Store) Get(id uint64) (*Auction, bool, error) {
	if s == nil || s.store == nil {
		return nil, false, errNilStore
	}
	var stored storedAuction
	ok, err := s.store.KVGet(recordKey(id), &stored)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	record, err := fromStoredAuction(&stored)
	if err != nil {
		return nil, false, err
	}
	return record, true, nil
}

// IDs returns every auction identifier in creation order.
func (s *Store) IDs() ([]uint64, error) {
	if s == nil || s.store == nil {
		return nil, errNilStore
	}
	var raw [][]byte
	if err := s.store.KVGetList(auctionIndexKey, &raw); err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(raw))
	for _, encoded := range raw {
		if len(encoded) == 0 {
			continue
		}
		var id uint64
		if err := rlp.DecodeBytes(encoded, &id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// DurationBounds returns the configured global [min, max) auction duration
// window. The boolean reports whether bounds have been configured.
func (s *Store) DurationBounds() (int64, int64, bool, error) {
	if s == nil || s.store == nil {
		return 0, 0, false, errNilStore
	}
	var stored storedBounds
	ok, err := s.store.KVGet(auctionBoundsKey, &stored)
	if err != nil {
		return 0, 0, false, err
	}
	if !ok || stored.MaxDuration == 0 {
		return 0, 0, false, nil
	}
	minDuration, err := uint64ToInt64(stored.MinDuration)
	if err != nil {
		return 0, 0, false, err
	}
	maxDuration, err := uint64ToInt64(stored.MaxDuration)
	if err != nil {
		return 0, 0, false, err
	}
	return minDuration, maxDuration, true, nil
}

// PutDurationBounds persists the global duration window applied at creation
// time.
func (s *Store) PutDurationBounds(minDuration, maxDuration int64) error {
	if s == nil || s.store == nil {
		return errNilStore
	}
	if minDuration < 0 || maxDuration < 0 {
		return fmt.Errorf("auction store: negative duration bound")
	}
	return s.store.KVPut(auctionBoundsKey, storedBounds{
		MinDuration: uint64(minDuration),
		MaxDuration: uint64(maxDuration),
	})
}

func toStoredAuction(a *Auction) (*storedAuction, error) {
	if a.StartTime < 0 || a.Duration < 0 || a.EndTime < 0 {
		return nil, fmt.Errorf("auction store: negative timestamp on auction %d", a.ID)
	}
	stored := &storedAuction{
		ID:        a.ID,
		Owner:     a.Owner,
		StartTime: uint64(a.StartTime),
		Duration:  uint64(a.Duration),
		Currency:  strings.TrimSpace(a.Currency),
		State:     uint8(a.State),
		Bidder:    a.Bidder,
		EndTime:   uint64(a.EndTime),
	}
	if a.MinAmount != nil {
		stored.MinAmount = a.MinAmount.String()
	}
	if a.MaxAmount != nil {
		stored.MaxAmount = a.MaxAmount.String()
	}
	if a.FinalPrice != nil {
		stored.FinalPrice = a.FinalPrice.String()
	}
	for _, item := range a.Product {
		stored.Product = append(stored.Product, storedPositionTransfer(item))
	}
	return stored, nil
}

func fromStoredAuction(stored *storedAuction) (*Auction, error) {
	startTime, err := uint64ToInt64(stored.StartTime)
	if err != nil {
		return nil, err
	}
	duration, err := uint64ToInt64(stored.Duration)
	if err != nil {
		return nil, err
	}
	endTime, err := uint64ToInt64(stored.EndTime)
	if err != nil {
		return nil, err
	}
	record := &Auction{
		ID:        stored.ID,
		Owner:     stored.Owner,
		StartTime: startTime,
		Duration:  duration,
		Currency:  stored.Currency,
		State:     State(stored.State),
		Bidder:    stored.Bidder,
		EndTime:   endTime,
	}
	if !record.State.Valid() {
		return nil, fmt.Errorf("%w: invalid state %d", errCorruptRecord, stored.State)
	}
	record.MinAmount, err = parseStoredBig(stored.MinAmount)
	if err != nil {
		return nil, err
	}
	record.MaxAmount, err = parseStoredBig(stored.MaxAmount)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(stored.FinalPrice) != "" {
		record.FinalPrice, err = parseStoredBig(stored.FinalPrice)
		if err != nil {
			return nil, err
		}
	}
	for _, item := range stored.Product {
		record.Product = append(record.Product, PositionTransfer(item))
	}
	return record, nil
}

func parseStoredBig(stored string) (*big.Int, error) {
	trimmed := strings.TrimSpace(stored)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%w: amount %q", errCorruptRecord, stored)
	}
	return value, nil
}

func uint64ToInt64(value uint64) (int64, error) {
	if value > math.MaxInt64 {
		return 0, fmt.Errorf("auction store: value %d exceeds int64 range", value)
	}
	return int64(value), nil
}
