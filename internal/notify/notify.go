package notify

import (
	"fmt"

	"trade_engine/pkg/logger"
)

// Notifier delivers operator-facing messages. Delivery is best effort; the
// trading cycle never blocks on it.
type Notifier interface {
	Send(text string)
	Sendf(format string, args ...interface{})
}

// LogNotifier is the fallback sink used when no chat transport is configured.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier { return &LogNotifier{} }

func (n *LogNotifier) Send(text string) {
	logger.Info("[NOTIFY] %s", text)
}

func (n *LogNotifier) Sendf(format string, args ...interface{}) {
	n.Send(fmt.Sprintf(format, args...))
}
