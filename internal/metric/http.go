package metric

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrProviderNotConfigured = errors.New("metric provider url is not configured")

// HTTPProvider queries the CRM reporting endpoint:
// GET {base}/metrics/{type}?scope=owner:<id>&from=<rfc3339>&to=<rfc3339>
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

type valueResponse struct {
	Value decimal.Decimal `json:"value"`
}

func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) GetValue(ctx context.Context, metricType Type, scope Scope, window Range) (decimal.Decimal, error) {
	if p.baseURL == "" {
		return decimal.Zero, NewPermanentError(ErrProviderNotConfigured, 0)
	}

	q := url.Values{}
	q.Set("scope", scope.String())
	q.Set("from", window.From.UTC().Format(time.RFC3339))
	q.Set("to", window.To.UTC().Format(time.RFC3339))
	endpoint := fmt.Sprintf("%s/metrics/%s?%s", p.baseURL, url.PathEscape(string(metricType)), q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Zero, NewPermanentError(err, 0)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return decimal.Zero, ctx.Err()
		}
		return decimal.Zero, NewTransientError(err, 0)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("unexpected status from %s: %s", metricType, strings.TrimSpace(string(body)))
		if isTransientStatus(resp.StatusCode) {
			return decimal.Zero, NewTransientError(err, resp.StatusCode)
		}
		return decimal.Zero, NewPermanentError(err, resp.StatusCode)
	}

	var payload valueResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, NewPermanentError(fmt.Errorf("decode metric response: %w", err), resp.StatusCode)
	}
	return payload.Value, nil
}
