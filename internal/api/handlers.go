package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/xtrntr/tokenmarket/internal/auth"
	"github.com/xtrntr/tokenmarket/internal/db"
	"github.com/xtrntr/tokenmarket/internal/ledger"
	"github.com/xtrntr/tokenmarket/internal/market"
	"github.com/xtrntr/tokenmarket/internal/models"
	"github.com/xtrntr/tokenmarket/internal/referral"
)

type contextKey string

const userKey contextKey = "user"

// EventLister reads the event journal. *db.DB implements it.
type EventLister interface {
	ListEvents(ctx context.Context, roundID, limit int) ([]db.Entry, error)
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Engine      *market.Engine
	AuthService *auth.AuthService
	Tokens      ledger.Ledger
	Funds       ledger.Ledger

	// Faucet credits FaucetAmount of base currency to every new account.
	// Both are optional.
	Faucet       ledger.Issuer
	FaucetAmount decimal.Decimal

	// Events serves /events when set.
	Events EventLister
}

// NewHandler creates a new handler
func NewHandler(engine *market.Engine, authService *auth.AuthService, tokens, funds ledger.Ledger) *Handler {
	return &Handler{Engine: engine, AuthService: authService, Tokens: tokens, Funds: funds}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Warn("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusOf maps domain errors to HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, market.ErrNotOwner),
		errors.Is(err, market.ErrNotOrderOwner),
		errors.Is(err, ledger.ErrMissingRole):
		return http.StatusForbidden
	case errors.Is(err, market.ErrRoundNotFound),
		errors.Is(err, market.ErrOrderNotFound),
		errors.Is(err, db.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, market.ErrAlreadyInitialized),
		errors.Is(err, market.ErrNotInitialized),
		errors.Is(err, market.ErrNotSaleRound),
		errors.Is(err, market.ErrNotTradeRound),
		errors.Is(err, market.ErrRoundTooYoung),
		errors.Is(err, market.ErrPaused),
		errors.Is(err, market.ErrNotPaused),
		errors.Is(err, market.ErrOrderClosed),
		errors.Is(err, market.ErrOrderAlreadyClosed),
		errors.Is(err, market.ErrAlreadyRegistered):
		return http.StatusConflict
	case errors.Is(err, market.ErrZeroAmount),
		errors.Is(err, market.ErrZeroCost),
		errors.Is(err, market.ErrZeroPrice),
		errors.Is(err, market.ErrDustAmount),
		errors.Is(err, market.ErrInsufficientPayment),
		errors.Is(err, market.ErrSupplyExceeded),
		errors.Is(err, market.ErrFillExceedsOrder),
		errors.Is(err, market.ErrSelfTrade),
		errors.Is(err, market.ErrSelfReferral),
		errors.Is(err, referral.ErrEmptyAddress),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, auth.ErrInvalidInput):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeDomainError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func intParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return n, true
}

func userFrom(r *http.Request) models.Address {
	user, _ := r.Context().Value(userKey).(models.Address)
	return user
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string         `json:"username"`
		Password string         `json:"password"`
		Referrer models.Address `json:"referrer"`
	}
	if !decode(w, r, &req) {
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Username and password required")
		return
	}
	// the referrer doesn't need an account
	if req.Referrer == models.Address(req.Username) {
		writeDomainError(w, market.ErrSelfReferral)
		return
	}

	user, err := h.AuthService.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusConflict, "Failed to register user")
		return
	}
	logger := log.WithField("user", user.Username)

	if !req.Referrer.IsZero() {
		if err := h.Engine.RegisterUser(user.Address(), req.Referrer); err != nil {
			logger.WithError(err).Warn("failed to register referrer")
		}
	}
	if h.Faucet != nil && h.FaucetAmount.IsPositive() {
		if err := h.Faucet.Mint(user.Address(), h.FaucetAmount); err != nil {
			logger.WithError(err).Warn("faucet mint failed")
		}
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
		"upline":   h.Engine.Upline(user.Address()),
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}

	token, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header required")
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		user, err := h.AuthService.GetUserFromToken(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Balance returns the caller's token and base currency balances
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	user := userFrom(r)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": user,
		"tokens":  h.Tokens.BalanceOf(user),
		"funds":   h.Funds.BalanceOf(user),
	})
}

// SetReferrer registers the caller's referrer
func (h *Handler) SetReferrer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Referrer models.Address `json:"referrer"`
	}
	if !decode(w, r, &req) {
		return
	}

	user := userFrom(r)
	if err := h.Engine.RegisterUser(user, req.Referrer); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.Engine.Upline(user))
}

// GetReferrals returns the upline of an address
func (h *Handler) GetReferrals(w http.ResponseWriter, r *http.Request) {
	address := models.Address(chi.URLParam(r, "address"))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":      address,
		"has_referrer": h.Engine.HasReferrer(address),
		"upline":       h.Engine.Upline(address),
	})
}

// GetEvents lists journaled events, optionally filtered by round
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	if h.Events == nil {
		writeError(w, http.StatusServiceUnavailable, "Event journal disabled")
		return
	}

	query := r.URL.Query()
	roundID, limit := 0, 100
	var err error
	if s := query.Get("round"); s != "" {
		if roundID, err = strconv.Atoi(s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid round")
			return
		}
	}
	if s := query.Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
	}

	entries, err := h.Events.ListEvents(r.Context(), roundID, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []db.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
