package httpx

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/domain"
	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/inventory"
)

type InventoryHandler struct {
	Service *inventory.Service
}

type createProductReq struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	Stock       int    `json:"stock"`
}

type stockAddReq struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	Notes     string `json:"notes"`
}

type reserveReq struct {
	ProductID string `json:"product_id"`
	OrderID   string `json:"order_id"`
	Qty       int    `json:"qty"`
}

type orderRef struct {
	OrderID string `json:"order_id"`
}

func (h *InventoryHandler) Register(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)
	r.Get("/products/{id}/movements", h.listMovements)
	r.Post("/admin/products", h.createProduct)
	r.Post("/stock/add", h.addStock)
	r.Post("/stock/reserve", h.reserve)
	r.Post("/stock/confirm", h.confirm)
	r.Post("/stock/release", h.release)
	r.Post("/admin/stock/sweep", h.sweep)
}

func (h *InventoryHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Service.Products(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *InventoryHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Service.Product(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *InventoryHandler) listMovements(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	ms, err := h.Service.Movements(ctx, chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

func (h *InventoryHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductReq
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p, err := h.Service.CreateProduct(ctx, principalFrom(r), req.Name, req.Description, req.PriceCents, req.Stock)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *InventoryHandler) addStock(w http.ResponseWriter, r *http.Request) {
	var req stockAddReq
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stock, err := h.Service.AddStock(ctx, principalFrom(r), req.ProductID, req.Qty, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product_id": req.ProductID, "stock": stock})
}

func (h *InventoryHandler) reserve(w http.ResponseWriter, r *http.Request) {
	var req reserveReq
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Service.Reserve(ctx, req.ProductID, req.OrderID, req.Qty)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *InventoryHandler) confirm(w http.ResponseWriter, r *http.Request) {
	var req orderRef
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	n, err := h.Service.ConfirmOrder(ctx, req.OrderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": req.OrderID, "confirmed": n})
}

func (h *InventoryHandler) release(w http.ResponseWriter, r *http.Request) {
	var req orderRef
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	n, err := h.Service.ReleaseOrder(ctx, req.OrderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": req.OrderID, "released": n})
}

func (h *InventoryHandler) sweep(w http.ResponseWriter, r *http.Request) {
	if !principalFrom(r).Admin {
		writeError(w, domain.E(domain.KindPermission, domain.CodePermissionDenied, "admin capability required"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	n, err := h.Service.Sweep(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expired": n})
}
