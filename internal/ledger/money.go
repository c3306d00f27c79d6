package ledger

import (
	"regexp"
	"strings"

	"github.com/govalues/decimal"
	"github.com/govalues/money"

	"github.com/tinoosan/pocketledger/internal/errs"
)

var reCurrency = regexp.MustCompile(`^[A-Z]{3}$`)

// NormalizeCurrency upper-cases code and checks it is exactly three letters.
func NormalizeCurrency(code string) (string, error) {
	c := strings.ToUpper(strings.TrimSpace(code))
	if !reCurrency.MatchString(c) {
		return "", errs.Invalid("currency is invalid")
	}
	return c, nil
}

// ValidateAmount checks amount is strictly positive. For ISO 4217 currencies
// the amount may not be more precise than the currency's minor unit.
func ValidateAmount(amount decimal.Decimal, currency string) error {
	if !amount.IsPos() {
		return errs.Invalid("amount must be positive")
	}
	if curr, err := money.ParseCurr(currency); err == nil {
		if amount.Trim(0).Scale() > curr.Scale() {
			return errs.Invalid("amount has more decimal places than " + curr.Code() + " allows")
		}
	}
	return nil
}

// ParseAmount parses a decimal string such as "100" or "12.50".
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.Parse(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, errs.Invalid("amount is not a decimal number")
	}
	return d, nil
}
