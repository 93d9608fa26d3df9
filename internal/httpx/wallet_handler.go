package httpx

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Codeclass-SKA/sistem-terdistribusi/internal/wallet"
)

type WalletHandler struct {
	Service *wallet.Service
}

type topUpReq struct {
	AccountID   string `json:"account_id"`
	AmountCents int64  `json:"amount_cents"`
}

type topUpResp struct {
	AccountID    string `json:"account_id"`
	BalanceCents int64  `json:"balance_cents"`
}

func (h *WalletHandler) Register(r chi.Router) {
	r.Post("/wallet/topup", h.topUp)
	r.Get("/wallet/{id}", h.balance)
	r.Get("/wallet/{id}/entries", h.entries)
}

func (h *WalletHandler) topUp(w http.ResponseWriter, r *http.Request) {
	var req topUpReq
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	actor := principalFrom(r)
	if req.AccountID == "" {
		req.AccountID = actor.ID
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	balance, err := h.Service.TopUp(ctx, actor, req.AccountID, req.AmountCents)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topUpResp{AccountID: req.AccountID, BalanceCents: balance})
}

func (h *WalletHandler) balance(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	accountID := chi.URLParam(r, "id")
	balance, err := h.Service.Balance(ctx, principalFrom(r), accountID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, topUpResp{AccountID: accountID, BalanceCents: balance})
}

func (h *WalletHandler) entries(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.Service.Entries(ctx, principalFrom(r), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
