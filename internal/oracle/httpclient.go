package oracle

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPClient talks to an external oracle service over JSON. It implements
// both Client and Arithmetic.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient builds a client against the oracle base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type revealRequest struct {
	Handles []Handle `json:"handles"`
}

type revealResponse struct {
	RequestID RequestID `json:"request_id"`
}

type verifyRequest struct {
	RequestID  RequestID `json:"request_id"`
	Cleartexts []string  `json:"cleartexts"`
	Proof      string    `json:"proof"`
}

type verifyResponse struct {
	Valid bool `json:"valid"`
}

type encryptRequest struct {
	Value uint64 `json:"value"`
}

type addRequest struct {
	Handle Handle `json:"handle"`
	Delta  uint64 `json:"delta"`
}

type handleResponse struct {
	Handle Handle `json:"handle"`
}

func (c *HTTPClient) RequestReveal(ctx context.Context, handles []Handle) (RequestID, error) {
	var out revealResponse
	if err := c.post(ctx, "/v1/reveal", revealRequest{Handles: handles}, &out); err != nil {
		return "", fmt.Errorf("request reveal: %w", err)
	}
	return out.RequestID, nil
}

func (c *HTTPClient) Verify(ctx context.Context, id RequestID, cleartexts Cleartexts, proof Proof) (bool, error) {
	encoded := make([]string, len(cleartexts))
	for i, ct := range cleartexts {
		encoded[i] = base64.StdEncoding.EncodeToString(ct)
	}
	var out verifyResponse
	req := verifyRequest{
		RequestID:  id,
		Cleartexts: encoded,
		Proof:      base64.StdEncoding.EncodeToString(proof),
	}
	if err := c.post(ctx, "/v1/verify", req, &out); err != nil {
		return false, fmt.Errorf("verify: %w", err)
	}
	return out.Valid, nil
}

func (c *HTTPClient) EncryptUint64(ctx context.Context, value uint64) (Handle, error) {
	var out handleResponse
	if err := c.post(ctx, "/v1/encrypt", encryptRequest{Value: value}, &out); err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	return out.Handle, nil
}

func (c *HTTPClient) AddUint64(ctx context.Context, ct Handle, delta uint64) (Handle, error) {
	var out handleResponse
	if err := c.post(ctx, "/v1/add", addRequest{Handle: ct, Delta: delta}, &out); err != nil {
		return "", fmt.Errorf("add: %w", err)
	}
	return out.Handle, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("oracle error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
