// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pdiddy/research-agents/internal/fault"
)

// GetJSON issues a GET with retries and decodes a 200 response into out.
// Transport failures and non-200 statuses come back as *fault.Error
// values labelled with op.
func GetJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, out any, maxRetries int, op string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := DoWithRetry(ctx, client, req, maxRetries)
	if err != nil {
		kind := fault.KindOf(err)
		if kind == fault.Unknown {
			kind = fault.ProviderTransient
		}
		return fault.New(kind, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fault.FromResponse(op, resp.StatusCode, string(data))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fault.New(fault.ProviderPermanent, op, fmt.Errorf("parsing response: %w", err))
	}
	return nil
}
