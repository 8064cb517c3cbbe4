package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"bondchain/core/state"
	"bondchain/crypto"
	"bondchain/native/auction"
	"bondchain/native/reserve"
	"bondchain/native/token"
	"bondchain/storage"
)

func testAddr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

func bech32Addr(b byte) string {
	addr := testAddr(b)
	return crypto.NewAddress(crypto.BondPrefix, addr[:]).String()
}

type serverFixture struct {
	server    *Server
	tokens    *token.Ledger
	positions *token.Registry
}

func newTestServer(t *testing.T) *serverFixture {
	t.Helper()
	t.Setenv(authTokenEnv, "secret")

	manager := state.NewManager(storage.NewMemDB())
	tokens := token.NewLedger(manager)
	positions := token.NewRegistry(manager)
	vault := testAddr(0x0f)

	reserveEngine := reserve.NewEngine(reserve.NewLedger(manager, tokens, vault), tokens)
	reserveEngine.SetBankAddress(testAddr(0xb0))

	auctionEngine := auction.NewEngine(auction.NewStore(manager), tokens, positions, testAddr(0xee))
	require.NoError(t, auctionEngine.InitDurationBounds(60, 100000))

	require.NoError(t, tokens.Mint("TOKA", vault, big.NewInt(1000)))
	require.NoError(t, tokens.Mint("TOKB", vault, big.NewInt(2000)))
	require.NoError(t, reserveEngine.UpdateWhenAddLiquidity(testAddr(0xb0), big.NewInt(1000), big.NewInt(2000), "TOKA", "TOKB"))

	return &serverFixture{server: NewServer(reserveEngine, auctionEngine), tokens: tokens, positions: positions}
}

func post(t *testing.T, handler http.Handler, token string, method string, params interface{}) (*httptest.ResponseRecorder, RPCResponse) {
	t.Helper()
	payload := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		payload["params"] = []interface{}{params}
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var resp RPCResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestHealthz(t *testing.T) {
	f := newTestServer(t)
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMethodNotFound(t *testing.T) {
	f := newTestServer(t)
	rec, resp := post(t, f.server.Router(), "", "reserve_unknown", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestGetReserves(t *testing.T) {
	f := newTestServer(t)
	rec, resp := post(t, f.server.Router(), "", "reserve_getReserves", map[string]string{
		"tokenA": "TOKA",
		"tokenB": "TOKB",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)

	encoded, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var result getReservesResult
	require.NoError(t, json.Unmarshal(encoded, &result))
	require.Equal(t, "1000", result.ReserveA)
	require.Equal(t, "2000", result.ReserveB)
}

func TestPrivilegedMethodRequiresToken(t *testing.T) {
	f := newTestServer(t)
	params := map[string]string{
		"caller":  bech32Addr(0xb0),
		"amountA": "10",
		"amountB": "20",
		"tokenA":  "TOKA",
		"tokenB":  "TOKB",
	}

	rec, resp := post(t, f.server.Router(), "", "reserve_addLiquidity", params)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	rec, resp = post(t, f.server.Router(), "wrong", "reserve_addLiquidity", params)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, resp.Error)
}

func TestPrivilegedMethodsFailClosedWithoutToken(t *testing.T) {
	f := newTestServer(t)
	t.Setenv(authTokenEnv, "")
	server := NewServer(f.server.reserve, f.server.auctions)

	rec, resp := post(t, server.Router(), "any-token", "reserve_updateBankAddress", map[string]string{
		"caller":  bech32Addr(0xb2),
		"newBank": bech32Addr(0xc0),
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeUnauthorized, resp.Error.Code)
}

func TestAddLiquidityWithToken(t *testing.T) {
	f := newTestServer(t)
	require.NoError(t, f.tokens.Mint("TOKA", testAddr(0x0f), big.NewInt(10)))
	require.NoError(t, f.tokens.Mint("TOKB", testAddr(0x0f), big.NewInt(20)))

	rec, resp := post(t, f.server.Router(), "secret", "reserve_addLiquidity", map[string]string{
		"caller":  bech32Addr(0xb0),
		"amountA": "10",
		"amountB": "20",
		"tokenA":  "TOKA",
		"tokenB":  "TOKB",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)
}

func TestInvalidParamsRejected(t *testing.T) {
	f := newTestServer(t)
	rec, resp := post(t, f.server.Router(), "", "reserve_swap", map[string]string{
		"amount1Out": "abc",
		"token0":     "TOKA",
		"token1":     "TOKB",
		"to":         bech32Addr(0x01),
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeInvalidParams, resp.Error.Code)
}

func TestUnsupportedVersionRejected(t *testing.T) {
	f := newTestServer(t)
	body := []byte(`{"jsonrpc":"1.0","id":1,"method":"reserve_getReserves"}`)
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuctionLifecycleOverRPC(t *testing.T) {
	f := newTestServer(t)
	router := f.server.Router()

	owner := testAddr(0x01)
	bidder := testAddr(0x02)
	require.NoError(t, f.positions.Mint("BOND", 7, owner))
	require.NoError(t, f.tokens.Mint("USD", bidder, big.NewInt(5000)))

	rec, resp := post(t, router, "", "auction_create", map[string]interface{}{
		"owner":     bech32Addr(0x01),
		"startTime": 0,
		"duration":  600,
		"currency":  "USD",
		"minAmount": "100",
		"maxAmount": "1000",
		"product":   []map[string]interface{}{{"class": "BOND", "positionId": 7}},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)

	encoded, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var created auctionJSON
	require.NoError(t, json.Unmarshal(encoded, &created))
	require.Equal(t, uint64(1), created.ID)
	require.Equal(t, "started", created.State)

	rec, resp = post(t, router, "", "auction_currentPrice", map[string]interface{}{"id": created.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)

	rec, resp = post(t, router, "", "auction_bid", map[string]interface{}{
		"caller": bech32Addr(0x02),
		"id":     created.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)

	encoded, err = json.Marshal(resp.Result)
	require.NoError(t, err)
	var settled auctionJSON
	require.NoError(t, json.Unmarshal(encoded, &settled))
	require.Equal(t, "completed", settled.State)
	require.Equal(t, bech32Addr(0x02), settled.Bidder)

	rec, resp = post(t, router, "", "auction_list", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Nil(t, resp.Error)
}
