package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/skillmarket-system/internal/validation"
)

type purchaseTokensRequest struct {
	Payment string `json:"payment"`
}

type purchaseTokensResponse struct {
	Account string `json:"account"`
	Payment string `json:"payment"`
	Minted  string `json:"minted"`
}

// PurchaseTokens эмитирует токены вызывающему в обмен на нативную валюту.
func (h *Handler) PurchaseTokens(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAccount(w, r)
	if !ok {
		return
	}

	var req purchaseTokensRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	payment, ok := validation.ParseAmount(req.Payment)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_AMOUNT", "payment must be a non-negative integer")
		return
	}

	minted, err := h.service.PurchaseTokens(r.Context(), caller, payment)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, purchaseTokensResponse{
		Account: caller,
		Payment: payment.String(),
		Minted:  minted.String(),
	})
}

type balanceResponse struct {
	Account string `json:"account"`
	Balance string `json:"balance"`
}

// GetBalance возвращает баланс указанного счёта. Чтение без авторизации.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := parseAddress(w, chi.URLParam(r, "account"), "account")
	if !ok {
		return
	}

	balance, err := h.service.BalanceOf(r.Context(), account)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Account: account,
		Balance: balance.String(),
	})
}

type approveRequest struct {
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

// Approve устанавливает разрешённый лимит списания для указанного адресата.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAccount(w, r)
	if !ok {
		return
	}

	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	spender, ok := parseAddress(w, req.Spender, "spender")
	if !ok {
		return
	}

	amount, ok := validation.ParseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_AMOUNT", "amount must be a non-negative integer")
		return
	}

	if err := h.service.Approve(r.Context(), caller, spender, amount); err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type allowanceResponse struct {
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

// GetAllowance возвращает текущий разрешённый лимит списания для пары адресов.
func (h *Handler) GetAllowance(w http.ResponseWriter, r *http.Request) {
	owner, ok := parseAddress(w, r.URL.Query().Get("owner"), "owner")
	if !ok {
		return
	}
	spender, ok := parseAddress(w, r.URL.Query().Get("spender"), "spender")
	if !ok {
		return
	}

	amount, err := h.service.Allowance(r.Context(), owner, spender)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, allowanceResponse{
		Owner:   owner,
		Spender: spender,
		Amount:  amount.String(),
	})
}

type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// Transfer переводит токены со счёта вызывающего на указанный счёт.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAccount(w, r)
	if !ok {
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	to, ok := parseAddress(w, req.To, "to")
	if !ok {
		return
	}

	amount, ok := validation.ParseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_AMOUNT", "amount must be a non-negative integer")
		return
	}

	if err := h.service.Transfer(r.Context(), caller, to, amount); err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type transferFromRequest struct {
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

// TransferFrom списывает токены со счёта владельца на счёт вызывающего
// в пределах разрешённого лимита.
func (h *Handler) TransferFrom(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAccount(w, r)
	if !ok {
		return
	}

	var req transferFromRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	owner, ok := parseAddress(w, req.Owner, "owner")
	if !ok {
		return
	}

	amount, ok := validation.ParseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_AMOUNT", "amount must be a non-negative integer")
		return
	}

	if err := h.service.TransferFrom(r.Context(), caller, owner, amount); err != nil {
		h.writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type calculateResponse struct {
	NativeAmount string `json:"nativeAmount"`
	TokenAmount  string `json:"tokenAmount"`
}

// Calculate возвращает количество токенов за указанную сумму нативной валюты.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	amount, ok := validation.ParseAmount(r.URL.Query().Get("amount"))
	if !ok {
		writeError(w, http.StatusBadRequest, "INVALID_AMOUNT", "amount must be a non-negative integer")
		return
	}

	writeJSON(w, http.StatusOK, calculateResponse{
		NativeAmount: amount.String(),
		TokenAmount:  h.service.CalculateTokenAmount(amount).String(),
	})
}

type tokenInfoResponse struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    int    `json:"decimals"`
	TotalSupply string `json:"totalSupply"`
	Treasury    string `json:"treasury"`
}

// TokenInfo возвращает метаданные токена, объём эмиссии и адрес казны площадки.
func (h *Handler) TokenInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.TokenInfo(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenInfoResponse{
		Name:        info.Name,
		Symbol:      info.Symbol,
		Decimals:    info.Decimals,
		TotalSupply: info.TotalSupply.String(),
		Treasury:    h.service.TreasuryAddress(),
	})
}

type withdrawNativeResponse struct {
	Amount string `json:"amount"`
}

// WithdrawNative выводит резерв нативной валюты владельцу контракта токена.
func (h *Handler) WithdrawNative(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerAccount(w, r)
	if !ok {
		return
	}

	amount, err := h.service.WithdrawNative(r.Context(), caller)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, withdrawNativeResponse{Amount: amount.String()})
}
