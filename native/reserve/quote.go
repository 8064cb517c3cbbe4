package reserve

import (
	"errors"
	"math/big"
)

var (
	errPathTooShort = errors.New("reserve quote: path must contain at least two tokens")
	errZeroAmountIn = errors.New("reserve quote: input amount must be positive")
)

// quoteOut applies the constant-product quote for a single hop:
// amountOut = amountIn * reserveOut / (reserveIn + amountIn).
func quoteOut(amountIn, reserveIn, reserveOut *big.Int) *big.Int {
	numerator := new(big.Int).Mul(amountIn, reserveOut)
	denominator := new(big.Int).Add(reserveIn, amountIn)
	return numerator.Quo(numerator, denominator)
}

// AmountsOut prices a greedy multi-hop trade along the path, chaining each
// hop's output into the next hop's input. The result holds the input amount
// followed by every hop output. Pure; the quote carries no execution
// guarantee against reserves observed at a different time.
func (l *Ledger) AmountsOut(amountIn *big.Int, path []string) ([]*big.Int, error) {
	if l == nil || l.store == nil {
		return nil, errNilStore
	}
	if len(path) < 2 {
		return nil, errPathTooShort
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, errZeroAmountIn
	}
	amounts := make([]*big.Int, len(path))
	amounts[0] = new(big.Int).Set(amountIn)
	for i := 0; i < len(path)-1; i++ {
		reserveIn, reserveOut, err := l.Reserves(path[i], path[i+1])
		if err != nil {
			return nil, err
		}
		if reserveIn.Sign() == 0 || reserveOut.Sign() == 0 {
			return nil, errEmptyReserve
		}
		amounts[i+1] = quoteOut(amounts[i], reserveIn, reserveOut)
	}
	return amounts, nil
}

// AmountsOut exposes the path quote on the engine for RPC consumers.
func (e *Engine) AmountsOut(amountIn *big.Int, path []string) ([]*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.ledger.AmountsOut(amountIn, path)
}
