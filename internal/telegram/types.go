package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"
)

// BotConfig configuration of the bot
type BotConfig struct {
	Token string
	Debug bool
	// Endpoint overrides the Bot API URL template, e.g. for a local bot API server.
	Endpoint string
	// MessagesPerSecond paces outgoing messages. Telegram allows about 30/s per bot.
	MessagesPerSecond float64
}

// Bot telegram notification client
type Bot struct {
	Bot     *tgbotapi.BotAPI
	Config  BotConfig
	limiter *rate.Limiter
}

// Message a telegram message struct
type Message struct {
	ChatID int64
	Text   string
}
