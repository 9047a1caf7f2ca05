package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/CrossMart-Network/bridge_layer/internal/app/domain/asset"
)

// HTTPRelayConfig configures the HTTP relay adapter.
type HTTPRelayConfig struct {
	// BaseURL of the relay node, e.g. "https://relay.example.com".
	BaseURL string
	// Token is attached as X-Relay-Token on every call.
	Token string
	// SourceEndpoint identifies this node to the remote side.
	SourceEndpoint string
	Timeout        time.Duration
	MaxRetries     int
}

// HTTPRelay talks to an external relay node over REST. It retries
// transient failures; idempotency on the receiving side is the
// processor's payload-hash dedup, so duplicate sends are harmless.
type HTTPRelay struct {
	client         *http.Client
	baseURL        string
	token          string
	sourceEndpoint string
	maxRetries     int
}

var _ Transport = (*HTTPRelay)(nil)

// NewHTTPRelay creates an HTTP relay adapter.
func NewHTTPRelay(cfg HTTPRelayConfig) *HTTPRelay {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}
	return &HTTPRelay{
		client:         &http.Client{Timeout: timeout},
		baseURL:        cfg.BaseURL,
		token:          cfg.Token,
		sourceEndpoint: cfg.SourceEndpoint,
		maxRetries:     maxRetries,
	}
}

func (r *HTTPRelay) EstimateFee(ctx context.Context, targetChain asset.ChainTag, sender string, payload []byte, params Params) (int64, error) {
	body := map[string]any{
		"target_chain": uint16(targetChain),
		"sender":       sender,
		"payload":      payload,
		"params":       params,
	}
	resp, err := r.post(ctx, "/fees/estimate", body)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, relayError(resp)
	}
	var out struct {
		Fee int64 `json:"fee"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("decode fee estimate: %w", err)
	}
	return out.Fee, nil
}

func (r *HTTPRelay) Send(ctx context.Context, targetChain asset.ChainTag, destEndpoint string, payload []byte, refundAddr string, params Params) error {
	body := map[string]any{
		"target_chain":    uint16(targetChain),
		"dest_endpoint":   destEndpoint,
		"source_endpoint": r.sourceEndpoint,
		"payload":         payload,
		"refund_addr":     refundAddr,
		"params":          params,
	}
	resp, err := r.post(ctx, "/messages", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return relayError(resp)
	}
	return nil
}

func (r *HTTPRelay) post(ctx context.Context, path string, body any) (*http.Response, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}

	var resp *http.Response
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(encoded))
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if r.token != "" {
			req.Header.Set("X-Relay-Token", r.token)
		}

		resp, lastErr = r.client.Do(req)
		if lastErr == nil && resp.StatusCode < http.StatusInternalServerError {
			return resp, nil
		}
		if resp != nil {
			resp.Body.Close()
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("relay unreachable: %w", lastErr)
	}
	return nil, fmt.Errorf("relay unavailable after %d attempts", r.maxRetries+1)
}

func relayError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error != "" {
		return fmt.Errorf("relay: %s (status %d)", parsed.Error, resp.StatusCode)
	}
	return fmt.Errorf("relay returned status %d", resp.StatusCode)
}
