package reserve

import (
	"encoding/hex"
	"math/big"

	"bondchain/core/types"
)

const (
	EventTypeSwapped          = "reserve.swapped"
	EventTypeLiquidityAdded   = "reserve.liquidity_added"
	EventTypeLiquidityRemoved = "reserve.liquidity_removed"
	EventTypeSynced           = "reserve.synced"
)

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func newSwappedEvent(token0, token1 string, in0, in1, out0, out1 *big.Int, to [20]byte) *types.Event {
	return &types.Event{
		Type: EventTypeSwapped,
		Attributes: map[string]string{
			"token0":     token0,
			"token1":     token1,
			"amount0In":  formatAmount(in0),
			"amount1In":  formatAmount(in1),
			"amount0Out": formatAmount(out0),
			"amount1Out": formatAmount(out1),
			"recipient":  hex.EncodeToString(to[:]),
		},
	}
}

func newLiquidityAddedEvent(tokenA, tokenB string, amountA, amountB *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeLiquidityAdded,
		Attributes: map[string]string{
			"tokenA":  tokenA,
			"tokenB":  tokenB,
			"amountA": formatAmount(amountA),
			"amountB": formatAmount(amountB),
		},
	}
}

func newLiquidityRemovedEvent(token, partner string, amount *big.Int, to [20]byte) *types.Event {
	attrs := map[string]string{
		"token":     token,
		"amount":    formatAmount(amount),
		"recipient": hex.EncodeToString(to[:]),
	}
	if partner != "" {
		attrs["partner"] = partner
	}
	return &types.Event{Type: EventTypeLiquidityRemoved, Attributes: attrs}
}

func newSyncedEvent(token string, totalReserve *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeSynced,
		Attributes: map[string]string{
			"token":        token,
			"totalReserve": formatAmount(totalReserve),
		},
	}
}
