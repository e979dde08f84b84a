package service

import (
	"context"
	"net/http"

	"trade_engine/internal/models"

	"github.com/pkg/errors"
)

type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderRequest is one market order. For option instruments Strike/Expiration
// select the contract; for equity they are zero.
type OrderRequest struct {
	Symbol     string                `json:"symbol"`
	Quantity   int                   `json:"quantity"`
	Side       OrderSide             `json:"side"`
	Instrument models.InstrumentType `json:"instrument"`
	Strike     float64               `json:"strike,omitempty"`
	Expiration string                `json:"expiration,omitempty"` // YYYY-MM-DD
}

type OrderStatus string

const (
	OrderFilled   OrderStatus = "filled"
	OrderRejected OrderStatus = "rejected"
)

type OrderResult struct {
	OrderID   string      `json:"order_id"`
	Status    OrderStatus `json:"status"`
	FillPrice float64     `json:"fill_price"`
	Reason    string      `json:"reason,omitempty"`
}

func (c *Client) GetAccount(ctx context.Context) (models.Account, error) {
	var acct models.Account
	if err := c.do(ctx, http.MethodGet, "/v1/account", nil, &acct); err != nil {
		return models.Account{}, errors.Wrap(err, "get account")
	}
	if acct.Equity <= 0 {
		return models.Account{}, errors.New("get account: empty equity")
	}
	return acct, nil
}

// PlaceOrder submits a market order. A rejected status from the brokerage is
// returned as a non-transient GatewayError so callers never retry it.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	var res OrderResult
	if err := c.do(ctx, http.MethodPost, "/v1/orders", req, &res); err != nil {
		return OrderResult{}, err
	}
	if res.Status == OrderRejected {
		return res, &GatewayError{Msg: "order rejected: " + res.Reason, Transient: false}
	}
	return res, nil
}

// PlaceProtective attaches stop-loss and take-profit orders to a filled
// entry. Failures here are reported but never unwind the fill.
func (c *Client) PlaceProtective(ctx context.Context, symbol string, quantity int, stop, target float64) error {
	body := map[string]any{
		"symbol":   symbol,
		"quantity": quantity,
		"stop":     stop,
		"target":   target,
	}
	if err := c.do(ctx, http.MethodPost, "/v1/orders/protective", body, nil); err != nil {
		return errors.Wrapf(err, "protective orders %s", symbol)
	}
	return nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	if err := c.do(ctx, http.MethodDelete, "/v1/orders/"+orderID, nil, nil); err != nil {
		return errors.Wrapf(err, "cancel order %s", orderID)
	}
	return nil
}

func (c *Client) GetPositions(ctx context.Context) ([]models.Position, error) {
	var payload struct {
		Positions []models.Position `json:"positions"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/positions", nil, &payload); err != nil {
		return nil, errors.Wrap(err, "get positions")
	}
	return payload.Positions, nil
}
