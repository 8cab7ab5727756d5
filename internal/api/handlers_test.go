package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/tokenmarket/internal/auth"
	"github.com/xtrntr/tokenmarket/internal/db"
	"github.com/xtrntr/tokenmarket/internal/ledger"
	"github.com/xtrntr/tokenmarket/internal/market"
	"github.com/xtrntr/tokenmarket/internal/models"
)

const (
	testOwner  models.Address = "owner"
	testMarket models.Address = "marketplace"
	roundTime                 = time.Hour
)

var oneEther = decimal.New(1, 18)

type testEnv struct {
	router  *chi.Mux
	handler *Handler
	engine  *market.Engine
	tokens  *ledger.Memory
	funds   *ledger.Memory
	now     time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	env := &testEnv{
		tokens: ledger.NewMemory("ACDM", testOwner),
		funds:  ledger.NewMemory("ETH", testOwner),
		now:    time.Date(2022, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, env.tokens.Grant(testOwner, ledger.RoleMinter, testMarket))
	require.NoError(t, env.tokens.Grant(testOwner, ledger.RoleBurner, testMarket))
	require.NoError(t, env.funds.Grant(testOwner, ledger.RoleMinter, testOwner))

	env.engine = market.NewEngine(
		market.Config{Self: testMarket, Owner: testOwner, RoundDuration: roundTime},
		env.tokens, env.tokens.Capability(testMarket), env.funds,
		market.WithClock(func() time.Time { return env.now }),
		market.WithSink(market.Sinks{}),
	)

	authService := auth.NewAuthService(auth.NewMemoryStore(), []byte("test-secret"))
	env.handler = NewHandler(env.engine, authService, env.tokens, env.funds)
	env.handler.Faucet = env.funds.Capability(testOwner)
	env.handler.FaucetAmount = oneEther

	env.router = chi.NewRouter()
	env.handler.Routes(env.router, Extras{})
	return env
}

func (env *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

// signup registers the user and returns a token
func (env *testEnv) signup(t *testing.T, username, referrer string) string {
	t.Helper()
	w := env.do(t, "POST", "/auth/register", "", map[string]string{
		"username": username,
		"password": "password123",
		"referrer": referrer,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = env.do(t, "POST", "/auth/login", "", map[string]string{
		"username": username,
		"password": "password123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp["token"]
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response
}

func TestHandler_Register(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "")

	tests := []struct {
		name           string
		requestBody    map[string]interface{}
		expectedStatus int
		expectedBody   map[string]interface{}
	}{
		{
			name: "Success",
			requestBody: map[string]interface{}{
				"username": "testuser",
				"password": "testpass",
			},
			expectedStatus: http.StatusCreated,
			expectedBody: map[string]interface{}{
				"id":       float64(2), // JSON numbers are float64
				"username": "testuser",
				"upline":   map[string]interface{}{"level1": "", "level2": ""},
			},
		},
		{
			name: "With Referrer",
			requestBody: map[string]interface{}{
				"username": "bob",
				"password": "testpass",
				"referrer": "alice",
			},
			expectedStatus: http.StatusCreated,
			expectedBody: map[string]interface{}{
				"id":       float64(3),
				"username": "bob",
				"upline":   map[string]interface{}{"level1": "alice", "level2": ""},
			},
		},
		{
			name: "Missing Password",
			requestBody: map[string]interface{}{
				"username": "testuser",
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody: map[string]interface{}{
				"error": "Username and password required",
			},
		},
		{
			name: "Referrer Without Account",
			requestBody: map[string]interface{}{
				"username": "carol",
				"password": "testpass",
				"referrer": "nobody",
			},
			expectedStatus: http.StatusCreated,
			expectedBody: map[string]interface{}{
				"id":       float64(4),
				"username": "carol",
				"upline":   map[string]interface{}{"level1": "nobody", "level2": ""},
			},
		},
		{
			name: "Self Referral",
			requestBody: map[string]interface{}{
				"username": "dave",
				"password": "testpass",
				"referrer": "dave",
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody: map[string]interface{}{
				"error": "can't be self-referrer",
			},
		},
		{
			name: "Duplicate Username",
			requestBody: map[string]interface{}{
				"username": "alice",
				"password": "testpass",
			},
			expectedStatus: http.StatusConflict,
			expectedBody: map[string]interface{}{
				"error": "Failed to register user",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", "/auth/register", "", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedBody, decodeBody(t, w))
		})
	}

	// the faucet credited every new account once
	assert.True(t, env.funds.BalanceOf("bob").Equal(oneEther))
}

func TestHandler_Login(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.handler.AuthService.Register(context.Background(), "testuser", "testpass")
	require.NoError(t, err)

	tests := []struct {
		name           string
		requestBody    map[string]interface{}
		expectedStatus int
		expectToken    bool
	}{
		{
			name: "Success",
			requestBody: map[string]interface{}{
				"username": "testuser",
				"password": "testpass",
			},
			expectedStatus: http.StatusOK,
			expectToken:    true,
		},
		{
			name: "Invalid Credentials",
			requestBody: map[string]interface{}{
				"username": "testuser",
				"password": "wrongpass",
			},
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "POST", "/auth/login", "", tt.requestBody)
			assert.Equal(t, tt.expectedStatus, w.Code)

			response := decodeBody(t, w)
			if tt.expectToken {
				assert.Contains(t, response, "token")
			} else {
				assert.Contains(t, response, "error")
			}
		})
	}
}

func TestHandler_Unauthorized(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name  string
		token string
	}{
		{name: "Missing Token"},
		{name: "Garbage Token", token: "not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, "GET", "/balance", tt.token, nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestHandler_Admin(t *testing.T) {
	env := newTestEnv(t)
	ownerToken := env.signup(t, "owner", "")
	aliceToken := env.signup(t, "alice", "")

	initBody := map[string]string{
		"start_price":  "10000000000000",           // 0.00001 ether
		"start_supply": "100000000000000000000000", // 100000 tokens
	}

	w := env.do(t, "POST", "/admin/init", aliceToken, initBody)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, "GET", "/rounds/current", "", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, "POST", "/admin/init", ownerToken, initBody)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "sale", decodeBody(t, w)["kind"])

	w = env.do(t, "POST", "/admin/init", ownerToken, initBody)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, "POST", "/admin/pause", ownerToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "POST", "/sale/buy", aliceToken, map[string]string{"amount": "1000000000000000000", "paid": "10000000000000"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, "POST", "/admin/unpause", ownerToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "POST", "/admin/unpause", ownerToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandler_MarketFlow(t *testing.T) {
	env := newTestEnv(t)
	ownerToken := env.signup(t, "owner", "")
	aliceToken := env.signup(t, "alice", "")
	bobToken := env.signup(t, "bob", "alice")

	w := env.do(t, "POST", "/admin/init", ownerToken, map[string]string{
		"start_price":  "10000000000000",
		"start_supply": "100000000000000000000000",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	// bob buys 100 tokens for 0.001 ether, alice earns 5%
	w = env.do(t, "POST", "/sale/buy", bobToken, map[string]string{
		"amount": "100000000000000000000",
		"paid":   "2000000000000000",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	receipt := decodeBody(t, w)
	assert.Equal(t, "1000000000000000", receipt["required"])
	assert.Equal(t, "1000000000000000", receipt["refund"])

	w = env.do(t, "GET", "/balance", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1000050000000000000", decodeBody(t, w)["funds"])

	w = env.do(t, "GET", "/balance", bobToken, nil)
	assert.Equal(t, "100000000000000000000", decodeBody(t, w)["tokens"])

	// orders are refused during a sale round
	w = env.do(t, "POST", "/orders", bobToken, map[string]string{"amount": "1", "total_cost": "1"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, "POST", "/rounds/next", aliceToken, nil)
	assert.Equal(t, http.StatusConflict, w.Code, "round too young")

	env.now = env.now.Add(roundTime)
	w = env.do(t, "POST", "/rounds/next", aliceToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "trade", decodeBody(t, w)["kind"])

	// bob sells 50 tokens for 0.002 ether
	w = env.do(t, "POST", "/orders", bobToken, map[string]string{
		"amount":     "50000000000000000000",
		"total_cost": "2000000000000000",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	placed := decodeBody(t, w)
	assert.Equal(t, float64(2), placed["round_id"])
	assert.Equal(t, float64(0), placed["order_id"])

	w = env.do(t, "POST", "/orders/0/buy", bobToken, map[string]string{"amount": "1", "paid": "1"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "self trade")

	w = env.do(t, "DELETE", "/orders/0", aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// fractions of the smallest unit are refused before anything moves
	w = env.do(t, "POST", "/orders/0/buy", aliceToken, map[string]string{
		"amount": "10000000000000000000.5",
		"paid":   "1000000000000000",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// alice fills 25 tokens for 0.001 ether
	w = env.do(t, "POST", "/orders/0/buy", aliceToken, map[string]string{
		"amount": "25000000000000000000",
		"paid":   "1000000000000000",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, "GET", "/rounds/2/orders/0", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "25000000000000000000", decodeBody(t, w)["amount"])

	w = env.do(t, "DELETE", "/orders/0", bobToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "GET", "/rounds/2/orders", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var orders []models.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	assert.False(t, orders[0].IsOpen)

	w = env.do(t, "GET", "/rounds/9", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, "GET", "/referrals/bob", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decodeBody(t, w)["has_referrer"])
}

func TestHandler_SetReferrer(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "")
	bobToken := env.signup(t, "bob", "")

	w := env.do(t, "POST", "/referrals", bobToken, map[string]string{"referrer": "bob"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "POST", "/referrals", bobToken, map[string]string{"referrer": "alice"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "alice", decodeBody(t, w)["level1"])

	w = env.do(t, "POST", "/referrals", bobToken, map[string]string{"referrer": "alice"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

type fakeLister struct {
	roundID, limit int
}

func (l *fakeLister) ListEvents(ctx context.Context, roundID, limit int) ([]db.Entry, error) {
	l.roundID, l.limit = roundID, limit
	return []db.Entry{{ID: 1, Type: models.EventRoundStarted, RoundID: roundID, Payload: json.RawMessage(`{}`)}}, nil
}

func TestHandler_GetEvents(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, "GET", "/events", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	lister := &fakeLister{}
	env.handler.Events = lister

	w = env.do(t, "GET", "/events?round=3&limit=5", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, lister.roundID)
	assert.Equal(t, 5, lister.limit)

	var entries []db.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, models.EventRoundStarted, entries[0].Type)

	w = env.do(t, "GET", "/events?round=x", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
