package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/skillmarket-system/internal/middleware"
	"github.com/mmeshcher/skillmarket-system/internal/model"
	"github.com/mmeshcher/skillmarket-system/internal/repository"
	"github.com/mmeshcher/skillmarket-system/internal/service"
)

const (
	testStudent    = "0x00000000000000000000000000000000000000aa"
	testInstructor = "0x00000000000000000000000000000000000000bb"
	testTreasury   = "0x0000000000000000000000000000000000000001"
)

type stubService struct {
	purchaseMinted *big.Int
	purchaseErr    error

	balanceResp *big.Int
	balanceErr  error

	approveErr error

	allowanceResp *big.Int
	allowanceErr  error

	transferErr     error
	transferFromErr error

	tokenInfoResp *model.TokenInfo
	tokenInfoErr  error

	withdrawResp *big.Int
	withdrawErr  error

	createCourseID  int64
	createCourseErr error

	purchaseCourseErr error

	courseResp *model.Course
	courseErr  error

	activeCoursesResp []model.Course
	activeCoursesErr  error

	studentCoursesResp []model.Course
	studentCoursesErr  error

	hasPurchasedResp bool
	hasPurchasedErr  error
}

func (s *stubService) PurchaseTokens(ctx context.Context, caller string, payment *big.Int) (*big.Int, error) {
	return s.purchaseMinted, s.purchaseErr
}

func (s *stubService) CalculateTokenAmount(nativeAmount *big.Int) *big.Int {
	return model.TokensForNative(nativeAmount)
}

func (s *stubService) BalanceOf(ctx context.Context, account string) (*big.Int, error) {
	return s.balanceResp, s.balanceErr
}

func (s *stubService) Approve(ctx context.Context, caller, spender string, amount *big.Int) error {
	return s.approveErr
}

func (s *stubService) Allowance(ctx context.Context, owner, spender string) (*big.Int, error) {
	return s.allowanceResp, s.allowanceErr
}

func (s *stubService) Transfer(ctx context.Context, caller, to string, amount *big.Int) error {
	return s.transferErr
}

func (s *stubService) TransferFrom(ctx context.Context, caller, owner string, amount *big.Int) error {
	return s.transferFromErr
}

func (s *stubService) TokenInfo(ctx context.Context) (*model.TokenInfo, error) {
	return s.tokenInfoResp, s.tokenInfoErr
}

func (s *stubService) WithdrawNative(ctx context.Context, caller string) (*big.Int, error) {
	return s.withdrawResp, s.withdrawErr
}

func (s *stubService) TreasuryAddress() string {
	return testTreasury
}

func (s *stubService) CreateCourse(ctx context.Context, instructor, title, description, imageURL string, price *big.Int) (int64, error) {
	return s.createCourseID, s.createCourseErr
}

func (s *stubService) PurchaseCourse(ctx context.Context, student string, courseID int64) error {
	return s.purchaseCourseErr
}

func (s *stubService) GetCourse(ctx context.Context, id int64) (*model.Course, error) {
	return s.courseResp, s.courseErr
}

func (s *stubService) GetActiveCourses(ctx context.Context) ([]model.Course, error) {
	return s.activeCoursesResp, s.activeCoursesErr
}

func (s *stubService) GetStudentCourses(ctx context.Context, student string) ([]model.Course, error) {
	return s.studentCoursesResp, s.studentCoursesErr
}

func (s *stubService) HasUserPurchasedCourse(ctx context.Context, user string, courseID int64) (bool, error) {
	return s.hasPurchasedResp, s.hasPurchasedErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth)
}

func authorizedRequest(h *Handler, method, target string, body []byte) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+h.authMiddleware.IssueToken(testStudent))
	return req
}

func decodeError(t *testing.T, res *http.Response) errorResponse {
	t.Helper()

	var resp errorResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp
}

func TestSession_IssuesToken(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	body, _ := json.Marshal(sessionRequest{Account: testStudent})
	req := httptest.NewRequest(http.MethodPost, "/api/session", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Session(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp sessionResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Account != testStudent || resp.Token == "" {
		t.Fatalf("unexpected session response: %+v", resp)
	}
	if len(res.Cookies()) == 0 {
		t.Fatalf("auth cookie not set")
	}
}

func TestSession_RejectsInvalidAddress(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	body, _ := json.Marshal(sessionRequest{Account: "not-an-address"})
	req := httptest.NewRequest(http.MethodPost, "/api/session", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Session(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestPurchaseTokens_Success(t *testing.T) {
	svc := &stubService{purchaseMinted: big.NewInt(10000)}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(purchaseTokensRequest{Payment: "1"})
	req := authorizedRequest(h, http.MethodPost, "/api/token/purchase", body)
	rec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.PurchaseTokens))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp purchaseTokensResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Minted != "10000" {
		t.Fatalf("minted = %s, want 10000", resp.Minted)
	}
}

func TestPurchaseTokens_InvalidAmountCode(t *testing.T) {
	svc := &stubService{purchaseErr: service.ErrInvalidAmount}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(purchaseTokensRequest{Payment: "0"})
	req := authorizedRequest(h, http.MethodPost, "/api/token/purchase", body)
	rec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.PurchaseTokens))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
	if resp := decodeError(t, res); resp.Code != "INVALID_AMOUNT" {
		t.Fatalf("code = %s, want INVALID_AMOUNT", resp.Code)
	}
}

func TestPurchaseTokens_Unauthorized(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	body, _ := json.Marshal(purchaseTokensRequest{Payment: "1"})
	req := httptest.NewRequest(http.MethodPost, "/api/token/purchase", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handlerWithAuth := h.authMiddleware.Middleware(http.HandlerFunc(h.PurchaseTokens))
	handlerWithAuth.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}
}

func TestGetBalance_JSONResponse(t *testing.T) {
	svc := &stubService{balanceResp: big.NewInt(9900)}
	h := newTestHandler(t, svc)

	r := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/token/balance/"+testStudent, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp balanceResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Balance != "9900" {
		t.Fatalf("balance = %s, want 9900", resp.Balance)
	}
}

func TestPurchaseCourse_ErrorCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "course not found",
			err:        repository.ErrCourseNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   "COURSE_NOT_FOUND",
		},
		{
			name:       "self purchase",
			err:        repository.ErrSelfPurchase,
			wantStatus: http.StatusForbidden,
			wantCode:   "SELF_PURCHASE",
		},
		{
			name:       "already purchased",
			err:        repository.ErrAlreadyPurchased,
			wantStatus: http.StatusConflict,
			wantCode:   "ALREADY_PURCHASED",
		},
		{
			name:       "insufficient allowance",
			err:        repository.ErrInsufficientAllowance,
			wantStatus: http.StatusPaymentRequired,
			wantCode:   "INSUFFICIENT_ALLOWANCE",
		},
		{
			name:       "insufficient balance",
			err:        repository.ErrInsufficientBalance,
			wantStatus: http.StatusPaymentRequired,
			wantCode:   "INSUFFICIENT_BALANCE",
		},
		{
			name:       "course inactive",
			err:        repository.ErrCourseInactive,
			wantStatus: http.StatusConflict,
			wantCode:   "COURSE_INACTIVE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{purchaseCourseErr: tt.err}
			h := newTestHandler(t, svc)

			r := h.SetupRouter()

			req := authorizedRequest(h, http.MethodPost, "/api/courses/1/purchase", nil)
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			res := rec.Result()
			if res.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.wantStatus)
			}
			if resp := decodeError(t, res); resp.Code != tt.wantCode {
				t.Fatalf("code = %s, want %s", resp.Code, tt.wantCode)
			}
		})
	}
}

func TestCreateCourse_Created(t *testing.T) {
	svc := &stubService{createCourseID: 1}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(createCourseRequest{
		Title: "Course",
		Price: "100",
	})

	r := h.SetupRouter()
	req := authorizedRequest(h, http.MethodPost, "/api/courses/", body)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var resp createCourseResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != 1 {
		t.Fatalf("id = %d, want 1", resp.ID)
	}
}

func TestCreateCourse_InvalidPriceCode(t *testing.T) {
	svc := &stubService{createCourseErr: service.ErrInvalidPrice}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(createCourseRequest{
		Title: "Course",
		Price: "0",
	})

	r := h.SetupRouter()
	req := authorizedRequest(h, http.MethodPost, "/api/courses/", body)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
	if resp := decodeError(t, res); resp.Code != "INVALID_PRICE" {
		t.Fatalf("code = %s, want INVALID_PRICE", resp.Code)
	}
}

func TestGetCourses_NoContent(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	r := h.SetupRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/courses/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNoContent)
	}
}

func TestGetCourses_JSONResponse(t *testing.T) {
	now := time.Now().UTC()
	svc := &stubService{
		activeCoursesResp: []model.Course{
			{
				ID:         1,
				Title:      "Course 1",
				Price:      big.NewInt(100),
				Instructor: testInstructor,
				IsActive:   true,
				CreatedAt:  now,
			},
			{
				ID:         2,
				Title:      "Course 2",
				Price:      big.NewInt(200),
				Instructor: testInstructor,
				IsActive:   true,
				CreatedAt:  now,
			},
		},
	}
	h := newTestHandler(t, svc)

	r := h.SetupRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/courses/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var resp []courseResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 2 || resp[0].ID != 1 || resp[1].ID != 2 {
		t.Fatalf("unexpected courses: %+v", resp)
	}
	if resp[0].Price != "100" {
		t.Fatalf("price = %s, want 100", resp[0].Price)
	}
}

func TestHasPurchased_FalseForUnknownCourse(t *testing.T) {
	h := newTestHandler(t, &stubService{hasPurchasedResp: false})

	r := h.SetupRouter()
	req := httptest.NewRequest(http.MethodGet, "/api/courses/99/purchased?user="+testStudent, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp hasPurchasedResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Purchased {
		t.Fatalf("purchased = true, want false")
	}
}

func TestWithdrawNative_NotOwnerCode(t *testing.T) {
	svc := &stubService{withdrawErr: service.ErrNotOwner}
	h := newTestHandler(t, svc)

	r := h.SetupRouter()
	req := authorizedRequest(h, http.MethodPost, "/api/token/withdraw-native", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusForbidden)
	}
	if resp := decodeError(t, res); resp.Code != "NOT_OWNER" {
		t.Fatalf("code = %s, want NOT_OWNER", resp.Code)
	}
}
