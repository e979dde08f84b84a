package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"trade_engine/internal/engine"
	"trade_engine/internal/modules/config"
	"trade_engine/pkg/logger"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Controller is the operator surface the chat commands drive.
type Controller interface {
	Pause() error
	Resume() error
	EmergencyStop(ctx context.Context) error
	UpdateLimit(name string, value float64) error
	Watch(symbol string)
	Unwatch(symbol string)
	Status() engine.StatusReport
}

// Telegram pushes alerts to the configured chat and serves the command loop.
// Only messages from that chat are honored.
type Telegram struct {
	bot    *tgbot.BotAPI
	chatID int64

	mu   sync.Mutex
	ctrl Controller

	stop chan struct{}
	done chan struct{}
}

func NewTelegram(cfg *config.Config) (*Telegram, error) {
	b, err := tgbot.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, err
	}
	return &Telegram{
		bot:    b,
		chatID: cfg.Telegram.ChatID,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Bind attaches the controller after construction. The notifier is built
// before the orchestrator, so the command loop gets its target late.
func (t *Telegram) Bind(ctrl Controller) {
	t.mu.Lock()
	t.ctrl = ctrl
	t.mu.Unlock()
}

func (t *Telegram) Send(text string) {
	if _, err := t.bot.Send(tgbot.NewMessage(t.chatID, text)); err != nil {
		logger.Error("[TELEGRAM] send: %v", err)
	}
}

func (t *Telegram) Sendf(format string, args ...interface{}) {
	t.Send(fmt.Sprintf(format, args...))
}

// Start launches the long-poll update loop.
func (t *Telegram) Start(ctx context.Context) {
	u := tgbot.NewUpdate(0)
	u.Timeout = 30
	updates := t.bot.GetUpdatesChan(u)

	go func() {
		defer close(t.done)
		for {
			select {
			case <-t.stop:
				t.bot.StopReceivingUpdates()
				return
			case <-ctx.Done():
				t.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				t.handleUpdate(ctx, update)
			}
		}
	}()
	logger.Info("[TELEGRAM] command loop started for chat %d", t.chatID)
}

func (t *Telegram) Stop() {
	close(t.stop)
	<-t.done
}

func (t *Telegram) handleUpdate(ctx context.Context, update tgbot.Update) {
	msg := update.Message
	if msg == nil || !msg.IsCommand() {
		return
	}
	if msg.Chat.ID != t.chatID {
		logger.Warn("[TELEGRAM] ignoring command from foreign chat %d", msg.Chat.ID)
		return
	}

	t.mu.Lock()
	ctrl := t.ctrl
	t.mu.Unlock()
	if ctrl == nil {
		t.Send("not ready yet")
		return
	}

	switch msg.Command() {
	case "status":
		t.Send(ctrl.Status().String())
	case "pause":
		t.reply(ctrl.Pause(), "paused: new entries suspended")
	case "resume":
		t.reply(ctrl.Resume(), "resumed")
	case "stop":
		t.reply(ctrl.EmergencyStop(ctx), "emergency stop complete")
	case "limit":
		t.handleLimit(ctrl, msg.CommandArguments())
	case "watch":
		if sym := symbolArg(msg.CommandArguments()); sym != "" {
			ctrl.Watch(sym)
			t.Sendf("watching %s", sym)
		} else {
			t.Send("usage: /watch SYMBOL")
		}
	case "unwatch":
		if sym := symbolArg(msg.CommandArguments()); sym != "" {
			ctrl.Unwatch(sym)
			t.Sendf("unwatched %s", sym)
		} else {
			t.Send("usage: /unwatch SYMBOL")
		}
	case "help":
		t.Send("commands: /status /pause /resume /stop /limit <name> <value> /watch <sym> /unwatch <sym>")
	default:
		t.Sendf("unknown command /%s, try /help", msg.Command())
	}
}

func (t *Telegram) handleLimit(ctrl Controller, args string) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		t.Send("usage: /limit <name> <value>")
		return
	}
	value, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		t.Sendf("bad value %q", fields[1])
		return
	}
	t.reply(ctrl.UpdateLimit(fields[0], value), fmt.Sprintf("limit %s = %g", fields[0], value))
}

func (t *Telegram) reply(err error, ok string) {
	if err != nil {
		t.Sendf("error: %v", err)
		return
	}
	t.Send(ok)
}

func symbolArg(args string) string {
	return strings.ToUpper(strings.TrimSpace(args))
}
