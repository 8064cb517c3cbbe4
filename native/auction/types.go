package auction

import (
	"math/big"
)

// State represents the lifecycle states of a Dutch auction.
type State uint8

const (
	StateStarted State = iota
	StateCompleted
	StateCancelled
)

// Valid reports whether the state value is within the supported range.
func (s State) Valid() bool {
	switch s {
	case StateStarted, StateCompleted, StateCancelled:
		return true
	default:
		return false
	}
}

func (s State) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// PositionTransfer identifies a single tokenized position escrowed for an
// auction.
type PositionTransfer struct {
	Class      string
	PositionID uint64
}

// Auction captures a tokenized bond sale priced by linear decay. Ids are
// monotonic and never reused; a zero StartTime marks a record that was never
// created. Completed and Cancelled are terminal: no field mutates afterwards.
type Auction struct {
	ID         uint64
	Owner      [20]byte
	StartTime  int64
	Duration   int64
	Currency   string
	MinAmount  *big.Int
	MaxAmount  *big.Int
	State      State
	Bidder     [20]byte
	EndTime    int64
	FinalPrice *big.Int
	Product    []PositionTransfer
}

// Clone returns a deep copy so callers can safely mutate the copy without
// affecting the stored instance.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	clone := *a
	if a.MinAmount != nil {
		clone.MinAmount = new(big.Int).Set(a.MinAmount)
	} else {
		clone.MinAmount = big.NewInt(0)
	}
	if a.MaxAmount != nil {
		clone.MaxAmount = new(big.Int).Set(a.MaxAmount)
	} else {
		clone.MaxAmount = big.NewInt(0)
	}
	if a.FinalPrice != nil {
		clone.FinalPrice = new(big.Int).Set(a.FinalPrice)
	}
	clone.Product = append([]PositionTransfer(nil), a.Product...)
	return &clone
}
