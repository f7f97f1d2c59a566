// Package reminder delivers scheduled reminders to a Telegram chat.
//
// It is the daemon's sample "real" handler set: schedule
// reminder.send("drink water") for tomorrow morning and the message shows up
// in the configured chat when the callback fires.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"clocktick/internal/config"
	logx "clocktick/pkg/logx"
	"clocktick/pkg/route"
)

// sender is the slice of the telebot API the handlers need. Tests substitute
// a recorder.
type sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Handlers owns the Telegram connection and exposes the reminder routes.
type Handlers struct {
	bot    sender
	chatID int64
	log    logx.Logger
}

// New dials Telegram with the configured token. The chat id is fixed per
// daemon; reminders are not multi-tenant.
func New(cfg config.ReminderConfig, log logx.Logger) (*Handlers, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("reminder token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("reminder chat_id is empty")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handlers{
		bot:    b,
		chatID: cfg.ChatID,
		log:    log.With(logx.String("comp", "reminder")),
	}, nil
}

// Routes returns the reminder namespace:
//
//	reminder.send(text)
//	reminder.nag(text, times)
func (h *Handlers) Routes() route.Group {
	return route.Group{
		"reminder": route.Group{
			"send": route.Handler(h.send),
			"nag":  route.Handler(h.nag),
		},
	}
}

func (h *Handlers) send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("reminder text is empty")
	}
	if _, err := h.bot.Send(tele.ChatID(h.chatID), text); err != nil {
		return fmt.Errorf("reminder send: %w", err)
	}
	h.log.Debug("reminder delivered", logx.Int64("chat_id", h.chatID))
	return nil
}

// nag repeats the reminder in one callback. Recurrence across callbacks
// belongs to the job's run_every, not here.
func (h *Handlers) nag(ctx context.Context, text string, times int) error {
	if times < 1 {
		times = 1
	}
	for i := 0; i < times; i++ {
		if err := h.send(ctx, fmt.Sprintf("(%d/%d) %s", i+1, times, text)); err != nil {
			return err
		}
	}
	return nil
}
