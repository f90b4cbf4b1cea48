package shared

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money 值对象 - 金额与币种，使用定点小数避免浮点误差
type Money struct {
	amount   decimal.Decimal
	currency string
}

// NewMoney 创建金额，币种统一为大写
func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{amount: amount, currency: strings.ToUpper(strings.TrimSpace(currency))}
}

// ParseMoney 从字符串金额创建
func ParseMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, NewValidationError("money", "amount", "amount is not a decimal: "+amount)
	}
	return NewMoney(d, currency), nil
}

func (m Money) Amount() decimal.Decimal { return m.amount }

func (m Money) Currency() string { return m.currency }

func (m Money) IsPositive() bool { return m.amount.IsPositive() }

// Validate 金额必须为正，币种为 3 位代码，最多 2 位小数
func (m Money) Validate() error {
	if !m.amount.IsPositive() {
		return NewValidationError("money", "amount", "amount must be positive")
	}
	if len(m.currency) != 3 {
		return NewValidationError("money", "currency", "currency must be a 3-letter code")
	}
	if m.amount.Exponent() < -2 && !m.amount.Equal(m.amount.Round(2)) {
		return NewValidationError("money", "amount", "amount supports at most 2 decimal places")
	}
	return nil
}

func (m Money) Equals(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

// String 形如 "12.50 CNY"
func (m Money) String() string {
	return m.amount.StringFixed(2) + " " + m.currency
}
