package api

import (
	"log/slog"
	"net/http"

	"github.com/erazemk/oder/internal/custody"
	"github.com/erazemk/oder/internal/model"
)

// OrdersHandler handles order endpoints.
type OrdersHandler struct {
	Custody *custody.Service
}

// orderView is an order with its loan status as of today.
type orderView struct {
	*model.Order
	Status custody.Status `json:"status"`
}

type createOrderResponse struct {
	Order orderView     `json:"order"`
	Plan  *custody.Plan `json:"plan"`
}

type returnRequest struct {
	IDs []string `json:"ids"`
}

type extendRequest struct {
	Days int `json:"days"`
}

func (h *OrdersHandler) view(o *model.Order) orderView {
	return orderView{Order: o, Status: custody.StatusFor(o, h.Custody.Today())}
}

// List handles GET /api/orders.
func (h *OrdersHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	state := q.Get("state")
	if state == "all" {
		state = custody.OrdersAll
	}
	filter := custody.OrderFilter{
		State:    state,
		AssetID:  q.Get("asset"),
		Crew:     q.Get("crew"),
		Contract: q.Get("contract"),
		Site:     q.Get("site"),
		Pickup:   q.Get("pickup"),
	}
	orders, err := h.Custody.Orders(r.Context(), filter)
	if err != nil {
		custodyError(w, "listing orders", err)
		return
	}

	views := make([]orderView, 0, len(orders))
	for i := range orders {
		views = append(views, h.view(&orders[i]))
	}
	jsonResponse(w, http.StatusOK, views)
}

// Create handles POST /api/orders.
func (h *OrdersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var draft custody.Draft
	if err := decodeJSON(r, &draft); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.Custody.CreateOrder(r.Context(), draft)
	if err != nil {
		custodyError(w, "creating order", err)
		return
	}

	slog.Info("order created", "user", actor(r), "order", res.Order.ID, "crew", res.Order.Crew,
		"pieces", res.Order.ActiveCount(), "born_returned", len(res.Plan.BornReturned))
	jsonResponse(w, http.StatusCreated, createOrderResponse{Order: h.view(res.Order), Plan: res.Plan})
}

// Get handles GET /api/orders/{id}.
func (h *OrdersHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.Custody.Order(r.Context(), r.PathValue("id"))
	if err != nil {
		custodyError(w, "getting order", err)
		return
	}
	jsonResponse(w, http.StatusOK, h.view(o))
}

// Return handles POST /api/orders/{id}/returns.
func (h *OrdersHandler) Return(w http.ResponseWriter, r *http.Request) {
	var req returnRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.Custody.ReturnByOrder(r.Context(), r.PathValue("id"), req.IDs)
	if err != nil {
		custodyError(w, "returning pieces", err)
		return
	}

	slog.Info("pieces returned", "user", actor(r), "order", res.Order.ID,
		"returned", len(res.Returned), "ignored", len(res.Ignored))
	jsonResponse(w, http.StatusOK, res)
}

// Extend handles POST /api/orders/{id}/extend.
func (h *OrdersHandler) Extend(w http.ResponseWriter, r *http.Request) {
	var req extendRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.Custody.ExtendLoan(r.Context(), r.PathValue("id"), req.Days)
	if err != nil {
		custodyError(w, "extending loan", err)
		return
	}

	slog.Info("loan extended", "user", actor(r), "order", o.ID, "days", req.Days, "loan_days", o.LoanDays)
	jsonResponse(w, http.StatusOK, h.view(o))
}

// FindHolder handles GET /api/holdings/{asset}.
func (h *OrdersHandler) FindHolder(w http.ResponseWriter, r *http.Request) {
	holding, err := h.Custody.FindHolder(r.Context(), r.PathValue("asset"))
	if err != nil {
		custodyError(w, "finding holder", err)
		return
	}
	jsonResponse(w, http.StatusOK, holding)
}

// ReturnHolding handles POST /api/holdings/{asset}/return.
func (h *OrdersHandler) ReturnHolding(w http.ResponseWriter, r *http.Request) {
	holding, err := h.Custody.ReturnByIdentifier(r.Context(), r.PathValue("asset"))
	if err != nil {
		custodyError(w, "returning piece", err)
		return
	}

	slog.Info("piece returned", "user", actor(r), "asset", holding.AssetID, "order", holding.Order.ID)
	jsonResponse(w, http.StatusOK, holding)
}

// Dashboard handles GET /api/dashboard.
func (h *OrdersHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Custody.Summary(r.Context())
	if err != nil {
		custodyError(w, "building summary", err)
		return
	}
	jsonResponse(w, http.StatusOK, sum)
}
