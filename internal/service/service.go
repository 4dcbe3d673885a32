// Package service реализует бизнес-логику токена SK и маркетплейса курсов.
package service

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/mmeshcher/skillmarket-system/internal/indexer"
	"github.com/mmeshcher/skillmarket-system/internal/model"
)

// ErrInvalidAmount возвращается при попытке купить токены на нулевую сумму.
var (
	ErrInvalidAmount = errors.New("payment amount must be positive")
	// ErrInvalidPrice возвращается при попытке создать курс с нулевой ценой.
	ErrInvalidPrice = errors.New("course price must be positive")
	// ErrNotOwner возвращается при вызове привилегированной операции не владельцем.
	ErrNotOwner = errors.New("caller is not the owner")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreditTokenPurchase(ctx context.Context, account string, payment, minted *big.Int) error
	GetBalance(ctx context.Context, account string) (*big.Int, error)
	GetTotalSupply(ctx context.Context) (*big.Int, error)
	SetAllowance(ctx context.Context, owner, spender string, amount *big.Int) error
	GetAllowance(ctx context.Context, owner, spender string) (*big.Int, error)
	Transfer(ctx context.Context, from, to string, amount *big.Int) error
	TransferFrom(ctx context.Context, owner, spender, to string, amount *big.Int) error
	WithdrawNativeReserve(ctx context.Context) (*big.Int, error)

	CreateCourse(ctx context.Context, c model.Course) (int64, error)
	GetCourse(ctx context.Context, id int64) (*model.Course, error)
	GetActiveCourses(ctx context.Context) ([]model.Course, error)
	GetStudentCourses(ctx context.Context, student string) ([]model.Course, error)
	HasPurchased(ctx context.Context, user string, courseID int64) (bool, error)
	PurchaseCourse(ctx context.Context, student string, courseID int64, treasury string) error

	GetUndeliveredEvents(ctx context.Context, limit int) ([]model.Event, error)
	MarkEventDelivered(ctx context.Context, id int64) error
}

// Service содержит бизнес-логику токена и маркетплейса.
type Service struct {
	repo          Repository
	indexerClient *indexer.Client

	// owner — владелец контракта токена, единственный получатель резерва
	// нативной валюты. treasury — собственный счёт площадки, на котором
	// накапливаются комиссии.
	owner    string
	treasury string
}

// NewService создаёт новый сервис с указанным репозиторием и клиентом индексатора.
func NewService(repo Repository, indexerClient *indexer.Client, owner, treasury string) *Service {
	return &Service{
		repo:          repo,
		indexerClient: indexerClient,
		owner:         owner,
		treasury:      treasury,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// TreasuryAddress возвращает счёт площадки, который студенты указывают в approve.
func (s *Service) TreasuryAddress() string {
	return s.treasury
}

// PurchaseTokens эмитирует токены покупателю в обмен на нативную валюту по
// курсу 1:10000 и возвращает количество зачисленных единиц. Это единственный
// путь эмиссии; верхней границы у предложения нет.
func (s *Service) PurchaseTokens(ctx context.Context, caller string, payment *big.Int) (*big.Int, error) {
	if payment == nil || payment.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	minted := model.TokensForNative(payment)
	if err := s.repo.CreditTokenPurchase(ctx, caller, payment, minted); err != nil {
		return nil, err
	}

	return minted, nil
}

// CalculateTokenAmount возвращает количество токенов за указанную сумму
// нативной валюты. Чистая функция без обращения к состоянию.
func (s *Service) CalculateTokenAmount(nativeAmount *big.Int) *big.Int {
	return model.TokensForNative(nativeAmount)
}

// BalanceOf возвращает баланс счёта. Для неизвестного счёта — ноль.
func (s *Service) BalanceOf(ctx context.Context, account string) (*big.Int, error) {
	return s.repo.GetBalance(ctx, account)
}

// Approve устанавливает разрешённый лимит списания для указанного адресата,
// полностью перезаписывая прежнее значение.
func (s *Service) Approve(ctx context.Context, caller, spender string, amount *big.Int) error {
	return s.repo.SetAllowance(ctx, caller, spender, amount)
}

// Allowance возвращает текущий разрешённый лимит списания.
func (s *Service) Allowance(ctx context.Context, owner, spender string) (*big.Int, error) {
	return s.repo.GetAllowance(ctx, owner, spender)
}

// Transfer переводит токены со счёта вызывающего на указанный счёт.
func (s *Service) Transfer(ctx context.Context, caller, to string, amount *big.Int) error {
	return s.repo.Transfer(ctx, caller, to, amount)
}

// TransferFrom списывает токены со счёта владельца на счёт вызывающего в
// пределах разрешённого лимита.
func (s *Service) TransferFrom(ctx context.Context, caller, owner string, amount *big.Int) error {
	return s.repo.TransferFrom(ctx, owner, caller, caller, amount)
}

// TokenInfo возвращает метаданные токена и текущий объём эмиссии.
func (s *Service) TokenInfo(ctx context.Context) (*model.TokenInfo, error) {
	supply, err := s.repo.GetTotalSupply(ctx)
	if err != nil {
		return nil, err
	}

	return &model.TokenInfo{
		Name:        model.TokenName,
		Symbol:      model.TokenSymbol,
		Decimals:    model.TokenDecimals,
		TotalSupply: supply,
	}, nil
}

// WithdrawNative выводит накопленный резерв нативной валюты владельцу контракта.
// Доступно только владельцу, указанному при развёртывании.
func (s *Service) WithdrawNative(ctx context.Context, caller string) (*big.Int, error) {
	if s.owner == "" || caller != s.owner {
		return nil, ErrNotOwner
	}

	return s.repo.WithdrawNativeReserve(ctx)
}

// StartEventDelivery запускает фоновую доставку событий outbox-журнала индексатору.
func (s *Service) StartEventDelivery(ctx context.Context) {
	if s.indexerClient == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.deliverEventBatch(ctx)
			}
		}
	}()
}

func (s *Service) deliverEventBatch(ctx context.Context) {
	events, err := s.repo.GetUndeliveredEvents(ctx, 100)
	if err != nil {
		return
	}

	for _, ev := range events {
		if err := s.indexerClient.Deliver(ctx, ev); err != nil {
			// Доставка at-least-once: событие остаётся в журнале до успеха.
			return
		}

		_ = s.repo.MarkEventDelivered(ctx, ev.ID)
	}
}
