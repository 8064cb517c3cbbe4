package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"bondchain/crypto"
)

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected exactly one parameter object")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return amount, nil
}

func parseAddress(value string) ([20]byte, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Array(), nil
}

type getReservesParams struct {
	TokenA string `json:"tokenA"`
	TokenB string `json:"tokenB"`
}

type getReservesResult struct {
	ReserveA string `json:"reserveA"`
	ReserveB string `json:"reserveB"`
}

func (s *Server) handleGetReserves(w http.ResponseWriter, req *RPCRequest) error {
	var params getReservesParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return err
	}
	reserveA, reserveB, err := s.reserve.Reserves(params.TokenA, params.TokenB)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeServerError, err.Error(), nil)
		return err
	}
	writeResult(w, req.ID, getReservesResult{ReserveA: reserveA.String(), ReserveB: reserveB.String()})
	return nil
}

type swapParams struct {
	Amount0Out string `json:"amount0Out"`
	Amount1Out string `json:"amount1Out"`
	Token0     string `json:"token0"`
	Token1     string `json:"token1"`
	To         string `json:"to"`
}

func (s *Server) handleSwap(w http.ResponseWriter, req *RPCRequest) error {
	var params swapParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return err
	}
	amount0Out, err := parseAmount(params.Amount0Out)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	amount1Out, err := parseAmount(params.Amount1Out)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	to, err := parseAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	if err := s.reserve.Swap(amount0Out, amount1Out, params.Token0, params.Token1, to); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeServerError, err.Error(), nil)
		return err
	}
	writeResult(w, req.ID, true)
	return nil
}

type amountsOutParams struct {
	AmountIn string   `json:"amountIn"`
	Path     []string `json:"path"`
}

type amountsOutResult struct {
	Amounts []string `json:"amounts"`
}

func (s *Server) handleGetAmountsOut(w http.ResponseWriter, req *RPCRequest) error {
	var params amountsOutParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return err
	}
	amountIn, err := parseAmount(params.AmountIn)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	amounts, err := s.reserve.AmountsOut(amountIn, params.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeServerError, err.Error(), nil)
		return err
	}
	result := amountsOutResult{Amounts: make([]string, len(amounts))}
	for i, amount := range amounts {
		result.Amounts[i] = amount.String()
	}
	writeResult(w, req.ID, result)
	return nil
}

type addLiquidityParams struct {
	Caller  string `json:"caller"`
	AmountA string `json:"amountA"`
	AmountB string `json:"amountB"`
	TokenA  string `json:"tokenA"`
	TokenB  string `json:"tokenB"`
}

func (s *Server) handleAddLiquidity(w http.ResponseWriter, req *RPCRequest) error {
	var params addLiquidityParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return err
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	amountA, err := parseAmount(params.AmountA)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	amountB, err := parseAmount(params.AmountB)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	if err := s.reserve.UpdateWhenAddLiquidity(caller, amountA, amountB, params.TokenA, params.TokenB); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeServerError, err.Error(), nil)
		return err
	}
	writeResult(w, req.ID, true)
	return nil
}

type removeLiquidityParams struct {
	Caller string `json:"caller"`
	To     string `json:"to"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

func (s *Server) handleRemoveLiquidity(w http.ResponseWriter, req *RPCRequest) error {
	var params removeLiquidityParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return err
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	to, err := parseAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	if err := s.reserve.RemoveLiquidity(caller, to, params.Token, amount); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeServerError, err.Error(), nil)
		return err
	}
	writeResult(w, req.ID, true)
	return nil
}

type removeInsidePoolParams struct {
	Caller  string `json:"caller"`
	To      string `json:"to"`
	TokenA  string `json:"tokenA"`
	TokenB  string `json:"tokenB"`
	AmountA string `json:"amountA"`
}

func (s *Server) handleRemoveLiquidityInsidePool(w http.ResponseWriter, req *RPCRequest) error {
	var params removeInsidePoolParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return err
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	to, err := parseAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	amountA, err := parseAmount(params.AmountA)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	if err := s.reserve.RemoveLiquidityInsidePool(caller, to, params.TokenA, params.TokenB, amountA); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeServerError, err.Error(), nil)
		return err
	}
	writeResult(w, req.ID, true)
	return nil
}

type syncParams struct {
	Token string `json:"token"`
}

func (s *Server) handleSync(w http.ResponseWriter, req *RPCRequest) error {
	var params syncParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return err
	}
	if err := s.reserve.Sync(params.Token); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeServerError, err.Error(), nil)
		return err
	}
	writeResult(w, req.ID, true)
	return nil
}

type updateBankParams struct {
	Caller  string `json:"caller"`
	NewBank string `json:"newBank"`
}

func (s *Server) handleUpdateBankAddress(w http.ResponseWriter, req *RPCRequest) error {
	var params updateBankParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid params", err.Error())
		return err
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	newBank, err := parseAddress(params.NewBank)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	if err := s.reserve.UpdateBankAddress(caller, newBank); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeServerError, err.Error(), nil)
		return err
	}
	writeResult(w, req.ID, true)
	return nil
}
