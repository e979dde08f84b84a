package models

import "time"

type AlertType string

const (
	AlertProfitTarget      AlertType = "profit_target"
	AlertStopLoss          AlertType = "stop_loss"
	AlertSignificantMove   AlertType = "significant_move"
	AlertExpirationWarning AlertType = "expiration_warning"
)

// AlertRecord tracks the last firing of a (symbol, type) pair for dedup.
// Threshold is only used for expiration warnings: lowest DTE threshold
// already fired for the symbol.
type AlertRecord struct {
	Symbol    string
	Type      AlertType
	LastFired time.Time
	Threshold int
}
