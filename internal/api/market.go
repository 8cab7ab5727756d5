package api

import (
	"net/http"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/xtrntr/tokenmarket/internal/models"
)

// Amounts are integers in base units, encoded as JSON strings or numbers.
type purchaseRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Paid   decimal.Decimal `json:"paid"`
}

// Status returns the engine summary
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.Status())
}

// GetCurrentRound returns the running round
func (h *Handler) GetCurrentRound(w http.ResponseWriter, r *http.Request) {
	round, err := h.Engine.CurrentRound()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// GetRound returns a round by id
func (h *Handler) GetRound(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(w, r, "id")
	if !ok {
		return
	}
	round, err := h.Engine.Round(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, round)
}

// GetRoundOrders returns the orders of a trade round
func (h *Handler) GetRoundOrders(w http.ResponseWriter, r *http.Request) {
	id, ok := intParam(w, r, "id")
	if !ok {
		return
	}
	orders, err := h.Engine.RoundOrders(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// GetOrder returns a single order of a trade round
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	roundID, ok := intParam(w, r, "id")
	if !ok {
		return
	}
	orderID, ok := intParam(w, r, "orderID")
	if !ok {
		return
	}
	order, err := h.Engine.Order(roundID, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// BuySale buys tokens from the running sale round
func (h *Handler) BuySale(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := h.Engine.BuyDuringSale(userFrom(r), req.Amount, req.Paid)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// PlaceOrder escrows tokens in a new sell order
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount    decimal.Decimal `json:"amount"`
		TotalCost decimal.Decimal `json:"total_cost"`
	}
	if !decode(w, r, &req) {
		return
	}

	orderID, err := h.Engine.PlaceOrder(userFrom(r), req.Amount, req.TotalCost)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	round, err := h.Engine.CurrentRound()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":  "Order placed",
		"round_id": round.ID,
		"order_id": orderID,
	})
}

// CancelOrder cancels an open order of the running trade round
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := intParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.Engine.CancelOrder(userFrom(r), orderID); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Order canceled"})
}

// BuyOrder fills an order of the running trade round
func (h *Handler) BuyOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := intParam(w, r, "id")
	if !ok {
		return
	}
	var req purchaseRequest
	if !decode(w, r, &req) {
		return
	}
	receipt, err := h.Engine.BuyOrder(userFrom(r), orderID, req.Amount, req.Paid)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// NextRound closes the running round once its duration elapsed
func (h *Handler) NextRound(w http.ResponseWriter, r *http.Request) {
	round, err := h.Engine.ChangeRound()
	if err != nil && round.ID == 0 {
		writeDomainError(w, err)
		return
	}
	if err != nil {
		log.WithError(err).Error("round changed with unreturned escrow")
	}
	writeJSON(w, http.StatusOK, round)
}

// Init opens the first sale round
func (h *Handler) Init(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StartPrice  decimal.Decimal `json:"start_price"`
		StartSupply decimal.Decimal `json:"start_supply"`
	}
	if !decode(w, r, &req) {
		return
	}
	round, err := h.Engine.Initialize(userFrom(r), req.StartPrice, req.StartSupply)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, round)
}

// Pause stops trading
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Pause(userFrom(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

// Unpause resumes trading
func (h *Handler) Unpause(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Unpause(userFrom(r)); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

// Withdraw moves marketplace revenue to an account
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		To     models.Address  `json:"to"`
		Amount decimal.Decimal `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	to := req.To
	if to.IsZero() {
		to = userFrom(r)
	}
	if err := h.Engine.Withdraw(userFrom(r), to, req.Amount); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"to": to, "amount": req.Amount})
}
