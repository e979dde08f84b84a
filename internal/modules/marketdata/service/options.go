package service

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"time"

	"trade_engine/internal/models"

	"github.com/pkg/errors"
)

// GetOptionsChain returns contracts expiring within [minDTE, maxDTE] days.
// Contracts the gateway returns without greeks get heuristic estimates and
// are tagged GreeksEstimated so downstream can weight them differently.
func (c *Client) GetOptionsChain(ctx context.Context, symbol string, minDTE, maxDTE int) ([]models.OptionContract, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("min_dte", fmt.Sprintf("%d", minDTE))
	q.Set("max_dte", fmt.Sprintf("%d", maxDTE))

	var payload struct {
		Spot      float64 `json:"spot"`
		Contracts []struct {
			Strike     float64        `json:"strike"`
			Expiration string         `json:"expiration"` // YYYY-MM-DD
			Type       string         `json:"type"`       // call | put
			Bid        float64        `json:"bid"`
			Ask        float64        `json:"ask"`
			Greeks     *models.Greeks `json:"greeks,omitempty"`
		} `json:"contracts"`
	}
	if err := c.get(ctx, "/v1/options", q, &payload); err != nil {
		return nil, errors.Wrapf(err, "options chain %s", symbol)
	}

	now := time.Now()
	contracts := make([]models.OptionContract, 0, len(payload.Contracts))
	for _, raw := range payload.Contracts {
		exp, err := time.Parse("2006-01-02", raw.Expiration)
		if err != nil {
			continue // malformed row, skip it rather than fail the chain
		}
		oc := models.OptionContract{
			Underlying: symbol,
			Strike:     raw.Strike,
			Expiration: exp,
			Type:       models.OptionType(raw.Type),
			Bid:        raw.Bid,
			Ask:        raw.Ask,
		}
		if oc.Type != models.OptionCall && oc.Type != models.OptionPut {
			continue
		}
		if raw.Greeks != nil {
			oc.Greeks = *raw.Greeks
		} else {
			oc.Greeks = estimateGreeks(payload.Spot, oc, now)
			oc.GreeksEstimated = true
		}
		contracts = append(contracts, oc)
	}
	return contracts, nil
}

// estimateGreeks produces rough moneyness-based stand-ins when the gateway
// omits greeks. These are advisory numbers for context, not pricing inputs.
func estimateGreeks(spot float64, c models.OptionContract, now time.Time) models.Greeks {
	if spot <= 0 || c.Strike <= 0 {
		return models.Greeks{}
	}
	moneyness := spot / c.Strike
	dte := models.DaysToExpiration(c.Expiration, now)
	if dte == 0 {
		dte = 1
	}

	// Delta decays from deep ITM toward OTM around a 0.5 ATM anchor.
	var delta float64
	switch {
	case moneyness > 1.05:
		delta = 0.75
	case moneyness > 0.98:
		delta = 0.5 + (moneyness-1)*5
	default:
		delta = math.Max(0.05, 0.5-(1-moneyness)*4)
	}
	if c.Type == models.OptionPut {
		delta = delta - 1 // put delta mirrors call delta
	}

	theta := -c.Mid() / float64(dte) // linear decay of remaining premium
	return models.Greeks{
		Delta: delta,
		Gamma: 0.05,
		Theta: theta,
		Vega:  0.1,
	}
}
