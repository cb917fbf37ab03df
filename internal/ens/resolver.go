// Package ens resolves ENS names for display. The alias is informational
// only; the wallet address stays authoritative for payment.
package ens

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Resolver looks up ENS names through a public resolution API
type Resolver struct {
	client   *http.Client
	endpoint string
	logger   *zap.Logger
}

// NewResolver creates a new resolver. timeout bounds every lookup.
func NewResolver(endpoint string, timeout time.Duration, logger *zap.Logger) *Resolver {
	return &Resolver{
		client:   &http.Client{Timeout: timeout},
		endpoint: strings.TrimSuffix(endpoint, "/"),
		logger:   logger,
	}
}

// Resolve returns the ENS name registered for an address, or "" when the
// address has none or the lookup fails. Best-effort: never returns an error.
func (r *Resolver) Resolve(ctx context.Context, address string) string {
	url := fmt.Sprintf("%s/%s", r.endpoint, address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ""
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("ENS lookup failed", zap.String("address", address), zap.Error(err))
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Debug("ENS lookup returned non-success",
			zap.String("address", address),
			zap.Int("status", resp.StatusCode))
		return ""
	}

	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		r.logger.Debug("ENS lookup returned malformed body", zap.Error(err))
		return ""
	}

	return body.Name
}
