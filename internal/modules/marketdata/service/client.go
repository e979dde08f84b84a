package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"trade_engine/internal/models"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Client talks to the market data gateway: quotes, bars, option chains and
// news over REST, plus a websocket quote stream that feeds the last-known
// price cache. All REST calls are read-only and safe to retry.
type Client struct {
	baseURL   string
	streamURL string
	apiKey    string

	http     *http.Client
	wsDialer *websocket.Dialer

	mu        sync.RWMutex
	lastKnown map[string]float64 // symbol -> last streamed/fetched price
}

func NewClient(baseURL, streamURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:   baseURL,
		streamURL: streamURL,
		apiKey:    apiKey,
		http:      &http.Client{Timeout: timeout},
		wsDialer:  &websocket.Dialer{},
		lastKnown: make(map[string]float64),
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.baseURL+path+"?"+query.Encode(),
		nil,
	)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return errors.Errorf("http %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode")
	}
	return nil
}

func (c *Client) GetQuote(ctx context.Context, symbol string) (models.Quote, error) {
	q := url.Values{}
	q.Set("symbol", symbol)

	var payload struct {
		Bid  float64 `json:"bid"`
		Ask  float64 `json:"ask"`
		Last float64 `json:"last"`
	}
	if err := c.get(ctx, "/v1/quote", q, &payload); err != nil {
		return models.Quote{}, errors.Wrapf(err, "quote %s", symbol)
	}
	quote := models.Quote{Bid: payload.Bid, Ask: payload.Ask, Last: payload.Last}
	if quote.Last <= 0 {
		return models.Quote{}, errors.Errorf("quote %s: empty last price", symbol)
	}
	c.touch(symbol, quote.Last)
	return quote, nil
}

// GetBars returns up to limit bars of the given interval, oldest first.
func (c *Client) GetBars(ctx context.Context, symbol, interval string, limit int) ([]models.Bar, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("limit", fmt.Sprintf("%d", limit))

	var payload struct {
		Bars []struct {
			Open   float64 `json:"o"`
			High   float64 `json:"h"`
			Low    float64 `json:"l"`
			Close  float64 `json:"c"`
			Volume float64 `json:"v"`
			TsMs   int64   `json:"ts"`
		} `json:"bars"`
	}
	if err := c.get(ctx, "/v1/bars", q, &payload); err != nil {
		return nil, errors.Wrapf(err, "bars %s %s", symbol, interval)
	}

	bars := make([]models.Bar, 0, len(payload.Bars))
	for _, b := range payload.Bars {
		bars = append(bars, models.Bar{
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
			Start:  time.UnixMilli(b.TsMs),
		})
	}
	return bars, nil
}

// LastKnown returns the freshest price seen for the symbol over any channel.
// Exit decisions fall back to this when a quote fetch fails, since closing
// must never be blocked by a data gap.
func (c *Client) LastKnown(symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	px, ok := c.lastKnown[symbol]
	return px, ok
}

func (c *Client) touch(symbol string, price float64) {
	if price <= 0 {
		return
	}
	c.mu.Lock()
	c.lastKnown[symbol] = price
	c.mu.Unlock()
}
