package timestamp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrRejected is returned when the endpoint answers without success.
var ErrRejected = errors.New("timestamp request rejected")

// Client calls a remote timestamp endpoint over HTTP.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates a client for the endpoint at rawURL
// (e.g. http://localhost:8080/api/blockchain/timestamp).
func NewClient(rawURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid timestamp endpoint %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid timestamp endpoint %q: scheme must be http or https", rawURL)
	}
	return &Client{
		endpoint:   u.String(),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Stamp posts req to the endpoint and decodes the transaction it returns.
func (c *Client) Stamp(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode timestamp request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build timestamp request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var out Response
	status, err := c.do(httpReq, &out)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 || !out.Success || out.Blockchain == nil {
		return nil, rejection(status, out.Error, out.Details)
	}
	return &out, nil
}

// Verify looks up a transaction by tx hash or legal hash.
func (c *Client) Verify(ctx context.Context, txHash, legalHash string) (*VerifyResponse, error) {
	u, _ := url.Parse(c.endpoint)
	q := u.Query()
	if txHash != "" {
		q.Set("txHash", txHash)
	}
	if legalHash != "" {
		q.Set("legalHash", legalHash)
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build verification request: %w", err)
	}

	var out VerifyResponse
	status, err := c.do(httpReq, &out)
	if err != nil {
		return nil, err
	}
	if status/100 != 2 || !out.Success {
		return nil, rejection(status, out.Error, "")
	}
	return &out, nil
}

func (c *Client) do(req *http.Request, out any) (int, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("timestamp endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read timestamp response: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		if resp.StatusCode/100 != 2 {
			return resp.StatusCode, rejection(resp.StatusCode, "", "")
		}
		return resp.StatusCode, fmt.Errorf("failed to decode timestamp response: %w", err)
	}
	return resp.StatusCode, nil
}

func rejection(status int, msg, details string) error {
	if msg == "" {
		msg = "Failed to create blockchain timestamp"
	}
	if details != "" {
		return fmt.Errorf("%w: status %d: %s: %s", ErrRejected, status, msg, details)
	}
	return fmt.Errorf("%w: status %d: %s", ErrRejected, status, msg)
}
