package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RateSource produces a to-USD multiplier for a currency code. The second
// return value reports explicit absence: the source answered but carries no
// rate for that code. Errors mean the source itself was unreachable.
type RateSource interface {
	Name() string
	Rate(ctx context.Context, code string) (decimal.Decimal, bool, error)
}

// jsdelivrSource queries the fawazahmed0 currency API (no key required,
// covers minor currencies like NGN).
type jsdelivrSource struct {
	client  *http.Client
	baseURL string
}

func newJSDelivrSource(timeout time.Duration) *jsdelivrSource {
	return &jsdelivrSource{
		client:  &http.Client{Timeout: timeout},
		baseURL: "https://cdn.jsdelivr.net/npm/@fawazahmed0/currency-api@latest/v1/currencies",
	}
}

func (s *jsdelivrSource) Name() string { return "jsdelivr" }

func (s *jsdelivrSource) Rate(ctx context.Context, code string) (decimal.Decimal, bool, error) {
	lower := strings.ToLower(code)
	url := fmt.Sprintf("%s/%s.json", s.baseURL, lower)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, false, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, false, fmt.Errorf("jsdelivr returned status %d", resp.StatusCode)
	}

	// Response shape: {"date": "...", "<code>": {"usd": 1.08, ...}}
	var body map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to decode jsdelivr response: %w", err)
	}

	raw, ok := body[lower]
	if !ok {
		return decimal.Zero, false, nil
	}

	var rates map[string]float64
	if err := json.Unmarshal(raw, &rates); err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to decode jsdelivr rates: %w", err)
	}

	rate, ok := rates["usd"]
	if !ok || rate <= 0 {
		return decimal.Zero, false, nil
	}

	return decimal.NewFromFloat(rate), true, nil
}

// frankfurterSource queries api.frankfurter.app. It covers fewer currencies
// than the primary source (no NGN, for example), so absence is common.
type frankfurterSource struct {
	client  *http.Client
	baseURL string
}

func newFrankfurterSource(timeout time.Duration) *frankfurterSource {
	return &frankfurterSource{
		client:  &http.Client{Timeout: timeout},
		baseURL: "https://api.frankfurter.app",
	}
}

func (s *frankfurterSource) Name() string { return "frankfurter" }

func (s *frankfurterSource) Rate(ctx context.Context, code string) (decimal.Decimal, bool, error) {
	url := fmt.Sprintf("%s/latest?from=%s&to=USD", s.baseURL, strings.ToUpper(code))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, false, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, false, fmt.Errorf("frankfurter returned status %d", resp.StatusCode)
	}

	var body struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to decode frankfurter response: %w", err)
	}

	rate, ok := body.Rates["USD"]
	if !ok || rate <= 0 {
		return decimal.Zero, false, nil
	}

	return decimal.NewFromFloat(rate), true, nil
}

// staticSource holds approximate rates bundled with the system, used when
// both live sources fail. Values are refreshed by hand now and then.
type staticSource struct {
	rates map[string]decimal.Decimal
}

func newStaticSource() *staticSource {
	rates := map[string]float64{
		"NGN": 0.00063, // Nigerian Naira ~1600 NGN = 1 USD
		"EUR": 1.08,
		"GBP": 1.27,
		"JPY": 0.0067,
		"INR": 0.012,
		"BRL": 0.20,
		"PHP": 0.018,
		"THB": 0.029,
		"SEK": 0.096,
		"PLN": 0.25,
		"CHF": 1.13,
		"AUD": 0.66,
		"CAD": 0.74,
		"MXN": 0.058,
		"KRW": 0.00075,
		"CNY": 0.14,
		"ZAR": 0.055,
	}

	converted := make(map[string]decimal.Decimal, len(rates))
	for code, rate := range rates {
		converted[code] = decimal.NewFromFloat(rate)
	}
	return &staticSource{rates: converted}
}

func (s *staticSource) Name() string { return "static" }

func (s *staticSource) Rate(_ context.Context, code string) (decimal.Decimal, bool, error) {
	rate, ok := s.rates[strings.ToUpper(code)]
	return rate, ok, nil
}
