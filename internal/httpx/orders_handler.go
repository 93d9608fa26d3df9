package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/domain"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/model"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/orders"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/redisx"
)

// StatusCache is the slice of Redis the handler needs for the order-status
// read cache. redisx.KV implements it.
type StatusCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, val string, ttl time.Duration) error
}

type OrdersHandler struct {
	Service *orders.Service
	Cache   StatusCache // optional status cache
}

type createOrderReq struct {
	Items           []orders.ItemInput `json:"items"`
	ShippingAddress string             `json:"shipping_address"`
	Notes           string             `json:"notes"`
}

type orderResp struct {
	Order *model.Order      `json:"order"`
	Items []model.OrderItem `json:"items"`
}

type cancelReq struct {
	Reason string `json:"reason"`
}

type statusUpdateReq struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

type statusResp struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.create)
	r.Get("/orders", h.list)
	r.Get("/orders/{id}", h.get)
	r.Get("/orders/{id}/status", h.getStatus)
	r.Get("/orders/{id}/history", h.history)
	r.Post("/orders/{id}/pay", h.pay)
	r.Post("/orders/{id}/cancel", h.cancel)
	r.Post("/admin/orders/{id}/status", h.adminStatus)
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	order, err := h.Service.Create(ctx, principalFrom(r), req.Items, req.ShippingAddress, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, order)
	writeJSON(w, http.StatusCreated, order)
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Service.List(ctx, principalFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	order, items, err := h.Service.Get(ctx, principalFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResp{Order: order, Items: items})
}

// getStatus serves from the projector-maintained Redis cache when it can,
// falling back to the database and warming the cache on a miss. The cached
// record carries the owner, so a hit goes through the same access check as
// the database path.
func (h *OrdersHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if h.Cache != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		if raw, ok, err := h.Cache.Get(ctx, key); err == nil && ok {
			var rec redisx.OrderStatusRecord
			if json.Unmarshal([]byte(raw), &rec) == nil && rec.Status != "" && rec.AccountID != "" {
				if !principalFrom(r).CanActOn(rec.AccountID) {
					writeError(w, domain.E(domain.KindPermission, domain.CodePermissionDenied,
						"order belongs to another account"))
					return
				}
				writeJSON(w, http.StatusOK, statusResp{OrderID: orderID, Status: rec.Status})
				return
			}
		}
	}

	order, _, err := h.Service.Get(ctx, principalFrom(r), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, order)
	writeJSON(w, http.StatusOK, statusResp{OrderID: order.ID, Status: string(order.Status)})
}

func (h *OrdersHandler) history(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	out, err := h.Service.History(ctx, principalFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) pay(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	order, err := h.Service.ProcessPayment(ctx, principalFrom(r), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, order)
	writeJSON(w, http.StatusOK, statusResp{OrderID: order.ID, Status: string(order.Status)})
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelReq
	if r.ContentLength > 0 {
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	order, err := h.Service.Cancel(ctx, principalFrom(r), orderID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, order)
	writeJSON(w, http.StatusOK, statusResp{OrderID: order.ID, Status: string(order.Status)})
}

func (h *OrdersHandler) adminStatus(w http.ResponseWriter, r *http.Request) {
	var req statusUpdateReq
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	orderID := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	order, err := h.Service.AdminUpdateStatus(ctx, principalFrom(r), orderID, model.OrderStatus(req.Status), req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	h.cacheStatus(ctx, order)
	writeJSON(w, http.StatusOK, statusResp{OrderID: order.ID, Status: string(order.Status)})
}

// cacheStatus best-effort refreshes the status cache after a local change;
// the projector refreshes it again from the event stream.
func (h *OrdersHandler) cacheStatus(ctx context.Context, o *model.Order) {
	if h.Cache == nil {
		return
	}
	rec, err := json.Marshal(redisx.OrderStatusRecord{
		AccountID: o.AccountID,
		Status:    string(o.Status),
	})
	if err != nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	_ = h.Cache.Set(ctx, key, string(rec), redisx.TTLStatusCache)
}
