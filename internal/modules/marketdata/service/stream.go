package service

import (
	"context"
	"time"

	"trade_engine/pkg/logger"

	"github.com/bytedance/sonic"
)

// StreamQuotes keeps one websocket subscription for the given symbols and
// updates the last-known price cache from every frame. Reconnects with a
// short pause until the context is cancelled.
func (c *Client) StreamQuotes(ctx context.Context, symbols []string) {
	if c.streamURL == "" || len(symbols) == 0 {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		logger.Info("[WS] connecting quote stream, %d symbols", len(symbols))
		conn, _, err := c.wsDialer.Dial(c.streamURL, nil)
		if err != nil {
			logger.Error("[WS] dial error: %v", err)
			time.Sleep(time.Second)
			continue
		}

		sub := map[string]any{
			"op":      "subscribe",
			"channel": "quotes",
			"symbols": symbols,
		}
		if err := conn.WriteJSON(sub); err != nil {
			logger.Error("[WS] subscribe error: %v", err)
			_ = conn.Close()
			continue
		}

		// keepalive ping so idle connections are not dropped
		stopPing := make(chan struct{})
		go func() {
			t := time.NewTicker(20 * time.Second)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-stopPing:
					return
				case <-t.C:
					_ = conn.WriteJSON(map[string]string{"op": "ping"})
				}
			}
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				logger.Error("[WS] read error: %v", err)
				_ = conn.Close()
				close(stopPing)
				break
			}

			var frame struct {
				Channel string  `json:"channel"`
				Symbol  string  `json:"symbol"`
				Last    float64 `json:"last"`
			}
			if err := sonic.Unmarshal(msg, &frame); err != nil {
				continue
			}
			if frame.Channel != "quotes" || frame.Symbol == "" {
				continue
			}
			c.touch(frame.Symbol, frame.Last)
		}

		select {
		case <-ctx.Done():
			return
		default:
			time.Sleep(time.Second)
		}
	}
}
