package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ariefcatur/go-bakery-orders/internal/orders"
	"github.com/ariefcatur/go-bakery-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
)

type LowStockLister interface {
	List(ctx context.Context) ([]redisx.LowStockEntry, error)
}

type AdminHandler struct {
	Orders   *OrdersHandler
	LowStock LowStockLister
}

type SetStateReq struct {
	State string `json:"state"`
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(requireAdmin)
		r.Put("/orders/{id}/state", h.setState)
		r.Delete("/orders/{id}", h.deleteOrder)
		r.Get("/stock/low", h.lowStock)
	})
}

func (h *AdminHandler) setState(w http.ResponseWriter, r *http.Request) {
	var req SetStateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid json"})
		return
	}
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	tr, err := h.Orders.Engine.AdminSetState(ctx, orderID, orders.Status(req.State))
	if err != nil {
		writeError(w, r, err, http.StatusBadRequest)
		return
	}
	h.Orders.cacheOrder(ctx, tr.Order)
	h.Orders.publish(r, orders.TopicOrderStateChanged, orders.EventOrderStateChanged, orderID, orders.OrderStateChangedPayload{
		OrderID: orderID, From: tr.From, To: tr.Order.Status,
	})
	writeJSON(w, http.StatusOK, toView(tr.Order))
}

func (h *AdminHandler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	reversed, err := h.Orders.Engine.Delete(ctx, orderID)
	if err != nil {
		writeError(w, r, err, http.StatusBadRequest)
		return
	}
	h.Orders.evictOrder(ctx, orderID)
	h.Orders.publish(r, orders.TopicOrderDeleted, orders.EventOrderDeleted, orderID, orders.OrderDeletedPayload{
		OrderID: orderID, Reversed: reversed,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) lowStock(w http.ResponseWriter, r *http.Request) {
	if h.LowStock == nil {
		writeJSON(w, http.StatusOK, []redisx.LowStockEntry{})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	list, err := h.LowStock.List(ctx)
	if err != nil {
		writeError(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
