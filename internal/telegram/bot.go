package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"crypto-portfolio-monitor/lib/helpers"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const defaultMessagesPerSecond = 1

// NewBot creates new telegram bot
func NewBot(c BotConfig) (*Bot, error) {
	if c.Endpoint == "" {
		c.Endpoint = tgbotapi.APIEndpoint
	}
	if c.MessagesPerSecond <= 0 {
		c.MessagesPerSecond = defaultMessagesPerSecond
	}

	bot, err := tgbotapi.NewBotAPIWithClient(c.Token, c.Endpoint, &http.Client{})
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}

	bot.Debug = c.Debug
	log.WithField("component", "telegram").Debugf("Authorized on account %s", bot.Self.UserName)

	return &Bot{
		Bot:     bot,
		Config:  c,
		limiter: rate.NewLimiter(rate.Limit(c.MessagesPerSecond), 1),
	}, nil
}

// SendMessage sends a telegram message
func (b *Bot) SendMessage(ctx context.Context, m Message) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "telegram send cancelled")
	}
	msg := tgbotapi.NewMessage(m.ChatID, m.Text)
	msg.DisableWebPagePreview = true
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	_, err := b.Bot.Send(msg)
	return errors.Wrapf(err, "could not send message to chat %d", m.ChatID)
}

// Notify sends subject and body to the chat id in target.
func (b *Bot) Notify(ctx context.Context, target, subject, body string) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(target), 10, 64)
	if err != nil {
		return errors.Wrapf(err, "invalid telegram chat id %q", target)
	}
	return b.SendMessage(ctx, Message{ChatID: chatID, Text: FormatNotification(subject, body)})
}

// FormatNotification renders a bold subject over the body in MarkdownV2.
func FormatNotification(subject, body string) string {
	return fmt.Sprintf("🚨 *%s*\n\n%s", helpers.EscapeMarkdownV2(subject), helpers.EscapeMarkdownV2(body))
}
