package rpc

import (
	"net/http"

	"bondchain/crypto"
	"bondchain/native/auction"
)

type positionTransferJSON struct {
	Class      string `json:"class"`
	PositionID uint64 `json:"positionId"`
}

type auctionJSON struct {
	ID         uint64                 `json:"id"`
	Owner      string                 `json:"owner"`
	StartTime  int64                  `json:"startTime"`
	Duration   int64                  `json:"duration"`
	Currency   string                 `json:"currency"`
	MinAmount  string                 `json:"minAmount"`
	MaxAmount  string                 `json:"maxAmount"`
	State      string                 `json:"state"`
	Bidder     string                 `json:"bidder,omitempty"`
	EndTime    int64                  `json:"endTime,omitempty"`
	FinalPrice string                 `json:"finalPrice,omitempty"`
	Product    []positionTransferJSON `json:"product"`
}

func encodeAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.BondPrefix, append([]byte(nil), addr[:]...)).String()
}

func auctionToJSON(record *auction.Auction) *auctionJSON {
	if record == nil {
		return nil
	}
	out := &auctionJSON{
		ID:        record.ID,
		Owner:     encodeAddress(record.Owner),
		StartTime: record.StartTime,
		Duration:  record.Duration,
		Currency:  record.Currency,
		MinAmount: record.MinAmount.String(),
		MaxAmount: record.MaxAmount.String(),
		State:     record.State.String(),
		EndTime:   record.EndTime,
		Product:   make([]positionTransferJSON, len(record.Product)),
	}
	if record.Bidder != ([20]byte{}) {
		out.Bidder = encodeAddress(record.Bidder)
	}
	if record.FinalPrice != nil {
		out.FinalPrice = record.FinalPrice.String()
	}
	for i, item := range record.Product {
		out.Product[i] = positionTransferJSON{Class: item.Class, PositionID: item.PositionID}
	}
	return out
}

type auctionCreateParams struct {
	Owner     string                 `json:"owner"`
	StartTime int64                  `json:"startTime"`
	Duration  int64                  `json:"duration"`
	Currency  string                 `json:"currency"`
	MinAmount string                 `json:"minAmount"`
	MaxAmount string                 `json:"maxAmount"`
	Product   []positionTransferJSON `json:"product"`
}

func (s *Server) handleAuctionCreate(w http.ResponseWriter, req *RPCRequest) error {
	var params auctionCreateParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return err
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	minAmount, err := parseAmount(params.MinAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	maxAmount, err := parseAmount(params.MaxAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	product := make([]auction.PositionTransfer, len(params.Product))
	for i, item := range params.Product {
		product[i] = auction.PositionTransfer{Class: item.Class, PositionID: item.PositionID}
	}
	record, err := s.auctions.CreateAuction(owner, params.StartTime, params.Duration, params.Currency, minAmount, maxAmount, product)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeServerError, err.Error(), nil)
		return err
	}
	writeResult(w, req.ID, auctionToJSON(record))
	return nil
}

type auctionBidParams struct {
	Caller string `json:"caller"`
	ID     uint64 `json:"id"`
}

func (s *Server) handleAuctionBid(w http.ResponseWriter, req *RPCRequest) error {
	var params auctionBidParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return err
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	record, err := s.auctions.Bid(caller, params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeServerError, err.Error(), nil)
		return err
	}
	writeResult(w, req.ID, auctionToJSON(record))
	return nil
}

func (s *Server) handleAuctionCancel(w http.ResponseWriter, req *RPCRequest) error {
	var params auctionBidParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return err
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	record, err := s.auctions.CancelAuction(caller, params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeServerError, err.Error(), nil)
		return err
	}
	writeResult(w, req.ID, auctionToJSON(record))
	return nil
}

type auctionIDParams struct {
	ID uint64 `json:"id"`
}

func (s *Server) handleAuctionCurrentPrice(w http.ResponseWriter, req *RPCRequest) error {
	var params auctionIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return err
	}
	price, err := s.auctions.CurrentPrice(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeServerError, err.Error(), nil)
		return err
	}
	writeResult(w, req.ID, price.String())
	return nil
}

func (s *Server) handleAuctionGet(w http.ResponseWriter, req *RPCRequest) error {
	var params auctionIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return err
	}
	record, ok, err := s.auctions.GetAuction(params.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
		return err
	}
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, "auction not found", nil)
		return nil
	}
	writeResult(w, req.ID, auctionToJSON(record))
	return nil
}

func (s *Server) handleAuctionList(w http.ResponseWriter, req *RPCRequest) error {
	ids, err := s.auctions.AuctionIDs()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, err.Error(), nil)
		return err
	}
	if ids == nil {
		ids = []uint64{}
	}
	writeResult(w, req.ID, ids)
	return nil
}

type durationParams struct {
	Caller   string `json:"caller"`
	Duration int64  `json:"duration"`
}

func (s *Server) handleAuctionSetMinDuration(w http.ResponseWriter, req *RPCRequest) error {
	var params durationParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return err
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	if err := s.auctions.SetMinDuration(caller, params.Duration); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeServerError, err.Error(), nil)
		return err
	}
	writeResult(w, req.ID, true)
	return nil
}

func (s *Server) handleAuctionSetMaxDuration(w http.ResponseWriter, req *RPCRequest) error {
	var params durationParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return err
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	if err := s.auctions.SetMaxDuration(caller, params.Duration); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeServerError, err.Error(), nil)
		return err
	}
	writeResult(w, req.ID, true)
	return nil
}
