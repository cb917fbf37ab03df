package utils

import (
	"fmt"
	"net/url"
	"regexp"

	"github.com/shopspring/decimal"
)

var walletAddressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidateWalletAddress validates a canonical EVM wallet address
func ValidateWalletAddress(address string) error {
	if address == "" {
		return fmt.Errorf("wallet address is required")
	}
	if !walletAddressRegex.MatchString(address) {
		return fmt.Errorf("invalid wallet address format: %s", address)
	}
	return nil
}

// ValidateAmount validates a claim amount
func ValidateAmount(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%s must be positive: %s", field, amount)
	}
	return nil
}

// ValidateImageURL validates an evidence image reference. References are
// opaque to the rest of the system, but must at least be absolute URLs.
func ValidateImageURL(field, ref string) error {
	if ref == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(ref)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL: %s", field, ref)
	}
	return nil
}
