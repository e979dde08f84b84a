package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"trade_engine/internal/models"

	"github.com/pkg/errors"
)

func (c *Client) GetNews(ctx context.Context, symbol string, limit int) ([]models.Headline, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("limit", fmt.Sprintf("%d", limit))

	var payload struct {
		Items []struct {
			Title     string   `json:"title"`
			Source    string   `json:"source"`
			TsMs      int64    `json:"ts"`
			Sentiment *float64 `json:"sentiment"`
		} `json:"items"`
	}
	if err := c.get(ctx, "/v1/news", q, &payload); err != nil {
		return nil, errors.Wrapf(err, "news %s", symbol)
	}

	headlines := make([]models.Headline, 0, len(payload.Items))
	for _, it := range payload.Items {
		h := models.Headline{
			Title:       it.Title,
			Source:      it.Source,
			PublishedAt: time.UnixMilli(it.TsMs),
		}
		if it.Sentiment != nil {
			h.Sentiment = clampSentiment(*it.Sentiment)
		} else {
			h.Sentiment = estimateSentiment(it.Title)
			h.SentimentEstimated = true
		}
		headlines = append(headlines, h)
	}
	return headlines, nil
}

var sentimentCues = map[string]float64{
	"beats":      0.4,
	"surge":      0.4,
	"upgrade":    0.3,
	"record":     0.3,
	"growth":     0.2,
	"misses":     -0.4,
	"plunge":     -0.4,
	"downgrade":  -0.3,
	"lawsuit":    -0.3,
	"recall":     -0.3,
	"investigat": -0.2,
}

// estimateSentiment is a crude keyword fallback for feeds without scores.
// Its output is always tagged estimated so downstream can discount it.
func estimateSentiment(title string) float64 {
	lower := strings.ToLower(title)
	var score float64
	for cue, w := range sentimentCues {
		if strings.Contains(lower, cue) {
			score += w
		}
	}
	return clampSentiment(score)
}

func clampSentiment(s float64) float64 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
