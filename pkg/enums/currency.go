package enums

import "strings"

// Currency is an ISO 4217 code the payment gateway settles in. Every
// supported currency has two minor digits, which pkg/money relies on.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyCAD Currency = "CAD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"

	DefaultCurrency = CurrencyUSD
)

var currencies = newSet("currency", CurrencyUSD, CurrencyCAD, CurrencyEUR, CurrencyGBP)

func (c Currency) String() string {
	return string(c)
}

func (c Currency) IsValid() bool {
	return currencies.has(c)
}

// GatewayCode is the lowercase form card processors expect.
func (c Currency) GatewayCode() string {
	return strings.ToLower(string(c))
}

// ParseCurrency matches the exact upper-case code.
func ParseCurrency(value string) (Currency, error) {
	return currencies.parse(value)
}

// NormalizeCurrency accepts any casing and surrounding space. Blank input
// selects DefaultCurrency.
func NormalizeCurrency(value string) (Currency, error) {
	value = strings.ToUpper(strings.TrimSpace(value))
	if value == "" {
		return DefaultCurrency, nil
	}
	return currencies.parse(value)
}

// SupportedCurrencies lists every accepted code.
func SupportedCurrencies() []Currency {
	return currencies.all()
}
