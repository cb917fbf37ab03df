// Package currency normalizes extracted receipt amounts to USD through a
// layered chain of rate sources: two live APIs, a bundled static table, and
// finally unconverted pass-through. Claim submission never hard-fails because
// a rate API is down.
package currency

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/slicefund/pizza-claims/internal/models"
)

// symbolToCode maps currency symbols and loose regional abbreviations to
// ISO-like codes. Unresolved inputs are upper-cased and used as-is.
var symbolToCode = map[string]string{
	"$":   "USD",
	"€":   "EUR",
	"£":   "GBP",
	"¥":   "JPY",
	"₦":   "NGN",
	"N":   "NGN", // Nigerian Naira often shown as N
	"NGN": "NGN",
	"₹":   "INR",
	"R$":  "BRL",
	"₱":   "PHP",
	"฿":   "THB",
	"kr":  "SEK",
	"zł":  "PLN",
	"CHF": "CHF",
	"A$":  "AUD",
	"C$":  "CAD",
}

// Conversion is the result of normalizing an amount to USD
type Conversion struct {
	USDAmount        decimal.Decimal `json:"usd_amount"`
	ExchangeRate     decimal.Decimal `json:"exchange_rate"`
	OriginalAmount   decimal.Decimal `json:"original_amount"`
	OriginalCurrency string          `json:"original_currency"`
	Source           string          `json:"source,omitempty"`
	// Degraded means no rate was found anywhere and the amount passed
	// through unconverted. A warning, not an error.
	Degraded bool `json:"degraded,omitempty"`
}

// Note renders a human-readable conversion summary, or "" for USD inputs
func (c Conversion) Note() string {
	if c.OriginalCurrency == models.ReferenceCurrency {
		return ""
	}
	if c.Degraded {
		return fmt.Sprintf("Could not convert %s %s to USD, amount recorded as-is",
			c.OriginalAmount, c.OriginalCurrency)
	}
	return fmt.Sprintf("Converted from %s %s → $%s USD (1 %s = $%s USD)",
		c.OriginalAmount, c.OriginalCurrency,
		c.USDAmount.StringFixed(2),
		c.OriginalCurrency, c.ExchangeRate.StringFixed(6))
}

// Normalizer converts amounts to USD via an ordered source chain
type Normalizer struct {
	sources []RateSource
	logger  *zap.Logger
}

// NewNormalizer creates a normalizer with the default chain: jsdelivr,
// frankfurter, static table. Each live lookup is bounded by timeout.
func NewNormalizer(timeout time.Duration, logger *zap.Logger) *Normalizer {
	return &Normalizer{
		sources: []RateSource{
			newJSDelivrSource(timeout),
			newFrankfurterSource(timeout),
			newStaticSource(),
		},
		logger: logger,
	}
}

// NewNormalizerWithSources creates a normalizer with an explicit chain
func NewNormalizerWithSources(sources []RateSource, logger *zap.Logger) *Normalizer {
	return &Normalizer{sources: sources, logger: logger}
}

// NormalizeCode resolves a symbol or loose abbreviation to a currency code
func NormalizeCode(input string) string {
	trimmed := strings.TrimSpace(input)
	if code, ok := symbolToCode[trimmed]; ok {
		return code
	}
	return strings.ToUpper(trimmed)
}

// ToUSD converts an amount to USD. The sources are tried in order; the first
// one that produces a rate wins. An exhausted chain degrades to pass-through
// rather than failing. Idempotent given the same inputs and a stable source.
func (n *Normalizer) ToUSD(ctx context.Context, amount decimal.Decimal, currencyCode string) Conversion {
	code := NormalizeCode(currencyCode)

	if code == models.ReferenceCurrency {
		return Conversion{
			USDAmount:        amount,
			ExchangeRate:     decimal.NewFromInt(1),
			OriginalAmount:   amount,
			OriginalCurrency: models.ReferenceCurrency,
		}
	}

	for _, source := range n.sources {
		rate, ok, err := source.Rate(ctx, code)
		if err != nil {
			n.logger.Warn("Rate source failed, trying next",
				zap.String("source", source.Name()),
				zap.String("currency", code),
				zap.Error(err))
			continue
		}
		if !ok {
			n.logger.Debug("Rate source has no rate for currency",
				zap.String("source", source.Name()),
				zap.String("currency", code))
			continue
		}

		usd := amount.Mul(rate).Round(2)
		n.logger.Info("Currency conversion",
			zap.String("source", source.Name()),
			zap.String("original", amount.String()+" "+code),
			zap.String("usd", usd.String()),
			zap.String("rate", rate.String()))

		return Conversion{
			USDAmount:        usd,
			ExchangeRate:     rate,
			OriginalAmount:   amount,
			OriginalCurrency: code,
			Source:           source.Name(),
		}
	}

	n.logger.Warn("Could not convert currency, passing amount through unconverted",
		zap.String("currency", code),
		zap.String("amount", amount.String()))

	return Conversion{
		USDAmount:        amount,
		ExchangeRate:     decimal.NewFromInt(1),
		OriginalAmount:   amount,
		OriginalCurrency: code,
		Degraded:         true,
	}
}
