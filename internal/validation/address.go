// Package validation содержит функции валидации входных данных.
package validation

import (
	"math/big"
	"strings"
)

const addressLength = 42

// IsValidAddress проверяет, что строка является адресом аккаунта:
// префикс "0x" и ровно 40 шестнадцатеричных символов.
func IsValidAddress(addr string) bool {
	if len(addr) != addressLength {
		return false
	}
	if addr[0] != '0' || (addr[1] != 'x' && addr[1] != 'X') {
		return false
	}

	for _, ch := range addr[2:] {
		switch {
		case ch >= '0' && ch <= '9':
		case ch >= 'a' && ch <= 'f':
		case ch >= 'A' && ch <= 'F':
		default:
			return false
		}
	}

	return true
}

// NormalizeAddress приводит адрес к каноническому виду в нижнем регистре.
// Адреса сравниваются и хранятся только в этом виде.
func NormalizeAddress(addr string) string {
	return strings.ToLower(addr)
}

// ParseAmount разбирает неотрицательную целую сумму из десятичной строки.
// Знаки, пробелы, пустая строка и нечисловые символы отклоняются.
func ParseAmount(s string) (*big.Int, bool) {
	if s == "" || len(s) > 78 {
		return nil, false
	}

	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return nil, false
		}
	}

	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, false
	}

	return v, true
}
