package auction

import (
	"encoding/hex"
	"strconv"

	"bondchain/core/types"
)

const (
	EventTypeStarted   = "auction.started"
	EventTypeBid       = "auction.bid"
	EventTypeCompleted = "auction.completed"
	EventTypeCancelled = "auction.cancelled"
)

func newStartedEvent(a *Auction) *types.Event {
	attrs := baseAttributes(a)
	attrs["minAmount"] = a.MinAmount.String()
	attrs["maxAmount"] = a.MaxAmount.String()
	attrs["duration"] = strconv.FormatInt(a.Duration, 10)
	attrs["currency"] = a.Currency
	return &types.Event{Type: EventTypeStarted, Attributes: attrs}
}

func newBidEvent(a *Auction) *types.Event {
	attrs := baseAttributes(a)
	attrs["bidder"] = hex.EncodeToString(a.Bidder[:])
	attrs["price"] = a.FinalPrice.String()
	attrs["bidTime"] = strconv.FormatInt(a.EndTime, 10)
	return &types.Event{Type: EventTypeBid, Attributes: attrs}
}

func newCompletedEvent(a *Auction) *types.Event {
	attrs := baseAttributes(a)
	attrs["bidder"] = hex.EncodeToString(a.Bidder[:])
	attrs["finalPrice"] = a.FinalPrice.String()
	attrs["endTime"] = strconv.FormatInt(a.EndTime, 10)
	return &types.Event{Type: EventTypeCompleted, Attributes: attrs}
}

func newCancelledEvent(a *Auction) *types.Event {
	attrs := baseAttributes(a)
	attrs["endTime"] = strconv.FormatInt(a.EndTime, 10)
	return &types.Event{Type: EventTypeCancelled, Attributes: attrs}
}

func baseAttributes(a *Auction) map[string]string {
	if a == nil {
		return map[string]string{}
	}
	return map[string]string{
		"auctionId": strconv.FormatUint(a.ID, 10),
		"owner":     hex.EncodeToString(a.Owner[:]),
		"startTime": strconv.FormatInt(a.StartTime, 10),
	}
}
