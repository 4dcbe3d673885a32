// Package handler содержит HTTP-обработчики API сервиса skillmarket.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/skillmarket-system/internal/middleware"
	"github.com/mmeshcher/skillmarket-system/internal/model"
	"github.com/mmeshcher/skillmarket-system/internal/repository"
	"github.com/mmeshcher/skillmarket-system/internal/service"
	"github.com/mmeshcher/skillmarket-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	PurchaseTokens(ctx context.Context, caller string, payment *big.Int) (*big.Int, error)
	CalculateTokenAmount(nativeAmount *big.Int) *big.Int
	BalanceOf(ctx context.Context, account string) (*big.Int, error)
	Approve(ctx context.Context, caller, spender string, amount *big.Int) error
	Allowance(ctx context.Context, owner, spender string) (*big.Int, error)
	Transfer(ctx context.Context, caller, to string, amount *big.Int) error
	TransferFrom(ctx context.Context, caller, owner string, amount *big.Int) error
	TokenInfo(ctx context.Context) (*model.TokenInfo, error)
	WithdrawNative(ctx context.Context, caller string) (*big.Int, error)
	TreasuryAddress() string

	CreateCourse(ctx context.Context, instructor, title, description, imageURL string, price *big.Int) (int64, error)
	PurchaseCourse(ctx context.Context, student string, courseID int64) error
	GetCourse(ctx context.Context, id int64) (*model.Course, error)
	GetActiveCourses(ctx context.Context) ([]model.Course, error)
	GetStudentCourses(ctx context.Context, student string) ([]model.Course, error)
	HasUserPurchasedCourse(ctx context.Context, user string, courseID int64) (bool, error)
}

// Handler реализует HTTP-обработчики API сервиса skillmarket.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// writeDomainError переводит ошибку доменного уровня в HTTP-ответ с машиночитаемым
// кодом. Неизвестные ошибки логируются и отдаются как 500.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "INVALID_AMOUNT", err.Error())
	case errors.Is(err, service.ErrInvalidPrice):
		writeError(w, http.StatusBadRequest, "INVALID_PRICE", err.Error())
	case errors.Is(err, service.ErrNotOwner):
		writeError(w, http.StatusForbidden, "NOT_OWNER", err.Error())
	case errors.Is(err, repository.ErrInsufficientAllowance):
		writeError(w, http.StatusPaymentRequired, "INSUFFICIENT_ALLOWANCE", err.Error())
	case errors.Is(err, repository.ErrInsufficientBalance):
		writeError(w, http.StatusPaymentRequired, "INSUFFICIENT_BALANCE", err.Error())
	case errors.Is(err, repository.ErrCourseNotFound):
		writeError(w, http.StatusNotFound, "COURSE_NOT_FOUND", err.Error())
	case errors.Is(err, repository.ErrCourseInactive):
		writeError(w, http.StatusConflict, "COURSE_INACTIVE", err.Error())
	case errors.Is(err, repository.ErrSelfPurchase):
		writeError(w, http.StatusForbidden, "SELF_PURCHASE", err.Error())
	case errors.Is(err, repository.ErrAlreadyPurchased):
		writeError(w, http.StatusConflict, "ALREADY_PURCHASED", err.Error())
	default:
		h.logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", http.StatusText(http.StatusInternalServerError))
	}
}

func callerAccount(w http.ResponseWriter, r *http.Request) (string, bool) {
	account, ok := middleware.GetAccountFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return "", false
	}
	return account, true
}

// parseAddress валидирует и нормализует адрес из входных данных.
func parseAddress(w http.ResponseWriter, addr, field string) (string, bool) {
	if !validation.IsValidAddress(addr) {
		writeError(w, http.StatusBadRequest, "INVALID_ADDRESS", "invalid "+field+" address")
		return "", false
	}
	return validation.NormalizeAddress(addr), true
}

type sessionRequest struct {
	Account string `json:"account"`
}

type sessionResponse struct {
	Account string `json:"account"`
	Token   string `json:"token"`
}

// Session выдаёт подписанный токен авторизации для адреса, подтверждённого
// шлюзом кошельков, и устанавливает его в cookie.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	account, ok := parseAddress(w, req.Account, "account")
	if !ok {
		return
	}

	h.authMiddleware.SetAuthCookie(w, account)
	writeJSON(w, http.StatusOK, sessionResponse{
		Account: account,
		Token:   h.authMiddleware.IssueToken(account),
	})
}
