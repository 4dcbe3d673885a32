// Package model содержит доменные сущности маркетплейса курсов и токена SK.
package model

import (
	"encoding/json"
	"math/big"
	"time"
)

// Параметры токена SK. Значения фиксированы при деплое и не меняются.
const (
	TokenName     = "SK Token"
	TokenSymbol   = "SK"
	TokenDecimals = 18

	// TokensPerNativeUnit задаёт курс обмена: 1 единица нативной валюты = 10000 единиц токена.
	TokensPerNativeUnit = 10000

	// PlatformFeePercent — процент комиссии площадки с каждой покупки курса.
	PlatformFeePercent = 5
)

// Course описывает курс, размещённый преподавателем на площадке.
type Course struct {
	ID            int64
	Title         string
	Description   string
	ImageURL      string
	Price         *big.Int
	Instructor    string
	IsActive      bool
	StudentsCount int64
	CreatedAt     time.Time
}

// Purchase описывает факт покупки курса студентом.
type Purchase struct {
	Student     string
	CourseID    int64
	PurchasedAt time.Time
}

// TokenInfo содержит метаданные токена и текущий объём эмиссии.
type TokenInfo struct {
	Name        string
	Symbol      string
	Decimals    int
	TotalSupply *big.Int
}

// EventType описывает тип события для внешних индексаторов.
type EventType string

const (
	EventTokensPurchased EventType = "tokens_purchased"
	EventCourseCreated   EventType = "course_created"
	EventCoursePurchased EventType = "course_purchased"
)

// Event описывает запись outbox-журнала, ожидающую доставки индексатору.
type Event struct {
	ID        int64           `json:"id"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// TokensForNative возвращает количество единиц токена, эмитируемых за указанную
// сумму нативной валюты. Чистая функция, аргумент не модифицируется.
func TokensForNative(nativeAmount *big.Int) *big.Int {
	return new(big.Int).Mul(nativeAmount, big.NewInt(TokensPerNativeUnit))
}

// SplitPrice делит цену курса на комиссию площадки и выплату преподавателю.
// Комиссия считается целочисленным делением с отбрасыванием остатка: для цены
// меньше 20 единиц комиссия равна нулю и вся сумма уходит преподавателю.
// Инвариант: fee + instructorPayment == price.
func SplitPrice(price *big.Int) (fee, instructorPayment *big.Int) {
	fee = new(big.Int).Mul(price, big.NewInt(PlatformFeePercent))
	fee.Div(fee, big.NewInt(100))
	instructorPayment = new(big.Int).Sub(price, fee)
	return fee, instructorPayment
}
