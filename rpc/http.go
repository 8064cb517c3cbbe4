package rpc

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bondchain/native/auction"
	"bondchain/native/reserve"
	"bondchain/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
	authTokenEnv    = "BOND_RPC_TOKEN"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
)

// Server exposes the reserve and auction engines over JSON-RPC.
type Server struct {
	reserve   *reserve.Engine
	auctions  *auction.Engine
	authToken string
	metrics   *observability.ModuleMetricsRegistry
}

// NewServer wires the RPC server to the protocol engines. Privileged methods
// require the bearer token from BOND_RPC_TOKEN; without one they fail closed.
func NewServer(reserveEngine *reserve.Engine, auctionEngine *auction.Engine) *Server {
	authToken := strings.TrimSpace(os.Getenv(authTokenEnv))
	if authToken == "" {
		slog.Warn("privileged RPC methods disabled", "reason", authTokenEnv+" not set")
	}
	return &Server{
		reserve:   reserveEngine,
		auctions:  auctionEngine,
		authToken: authToken,
		metrics:   observability.ModuleMetrics(),
	}
}

// Router builds the HTTP handler serving /rpc, /healthz and /metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/rpc", s.handle)
	return r
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return false
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	supplied := strings.TrimSpace(header[len(prefix):])
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) == 1
}

// privilegedMethods lists the methods gated behind the bearer token. The
// engines additionally validate the explicit caller identity carried in the
// params.
var privilegedMethods = map[string]bool{
	"reserve_addLiquidity":              true,
	"reserve_removeLiquidity":           true,
	"reserve_removeLiquidityInsidePool": true,
	"reserve_updateBankAddress":         true,
	"auction_setMinDuration":            true,
	"auction_setMaxDuration":            true,
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "failed to read request body", nil)
		return
	}
	if len(body) > maxRequestBytes {
		writeError(w, http.StatusRequestEntityTooLarge, nil, codeInvalidRequest, "request body too large", nil)
		return
	}

	var req RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", nil)
		return
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	if privilegedMethods[method] && !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, req.ID, codeUnauthorized, "unauthorized", nil)
		return
	}

	module := "reserve"
	if strings.HasPrefix(method, "auction_") {
		module = "auction"
	}
	start := time.Now()
	handlerErr := s.dispatch(w, r, &req, method)
	s.metrics.Observe(module, method, start, handlerErr)
}

// dispatch routes the request and reports whether the handler failed, for
// metrics purposes. Handlers write their own responses.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest, method string) error {
	switch method {
	case "reserve_getReserves":
		return s.handleGetReserves(w, req)
	case "reserve_swap":
		return s.handleSwap(w, req)
	case "reserve_getAmountsOut":
		return s.handleGetAmountsOut(w, req)
	case "reserve_addLiquidity":
		return s.handleAddLiquidity(w, req)
	case "reserve_removeLiquidity":
		return s.handleRemoveLiquidity(w, req)
	case "reserve_removeLiquidityInsidePool":
		return s.handleRemoveLiquidityInsidePool(w, req)
	case "reserve_sync":
		return s.handleSync(w, req)
	case "reserve_updateBankAddress":
		return s.handleUpdateBankAddress(w, req)
	case "auction_create":
		return s.handleAuctionCreate(w, req)
	case "auction_bid":
		return s.handleAuctionBid(w, req)
	case "auction_cancel":
		return s.handleAuctionCancel(w, req)
	case "auction_currentPrice":
		return s.handleAuctionCurrentPrice(w, req)
	case "auction_get":
		return s.handleAuctionGet(w, req)
	case "auction_list":
		return s.handleAuctionList(w, req)
	case "auction_setMinDuration":
		return s.handleAuctionSetMinDuration(w, req)
	case "auction_setMaxDuration":
		return s.handleAuctionSetMaxDuration(w, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", method)
		return nil
	}
}

// Start serves the RPC router on the supplied address.
func (s *Server) Start(addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server.ListenAndServe()
}
