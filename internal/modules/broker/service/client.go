package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// GatewayError is any brokerage-side failure. Transient failures (rate
// limits, timeouts, 5xx) may be retried with backoff; everything else must
// surface immediately and never leave a phantom position behind.
type GatewayError struct {
	Msg       string
	Transient bool
}

func (e *GatewayError) Error() string { return e.Msg }

// IsTransient reports whether the error is a retryable gateway failure.
func IsTransient(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Transient
	}
	return false
}

// Client is the brokerage execution gateway.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	http      *http.Client
}

func NewClient(baseURL, apiKey, apiSecret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		http:      &http.Client{Timeout: timeout},
	}
}

func (c *Client) sign(ts, method, path, body string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(ts + method + path + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = sonic.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshal body")
		}
	}

	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("X-Api-Timestamp", ts)
	req.Header.Set("X-Api-Sign", c.sign(ts, method, path, string(payload)))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		// network failures and client timeouts are worth a retry
		return &GatewayError{Msg: err.Error(), Transient: true}
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return &GatewayError{
			Msg:       errors.Errorf("http %d: %s", resp.StatusCode, string(b)).Error(),
			Transient: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode/100 == 5,
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode")
	}
	return nil
}
