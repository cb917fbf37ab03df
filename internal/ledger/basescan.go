// Package ledger holds the thin interface to the on-chain collaborator.
// Transfers are executed externally; the service only records the resulting
// transaction reference and never validates chain state.
package ledger

import (
	"fmt"
	"regexp"
)

var txHashRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// ValidateTransactionHash checks the shape of an externally supplied
// transaction reference (0x-prefixed 32-byte hex).
func ValidateTransactionHash(hash string) error {
	if hash == "" {
		return fmt.Errorf("transaction hash is required")
	}
	if !txHashRegex.MatchString(hash) {
		return fmt.Errorf("invalid transaction hash format: %s", hash)
	}
	return nil
}

// BaseScanURL returns the block explorer URL for a transaction on Base.
func BaseScanURL(transactionHash string) string {
	return fmt.Sprintf("https://basescan.org/tx/%s", transactionHash)
}
