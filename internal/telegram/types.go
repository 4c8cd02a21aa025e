package telegram

import "time"

// BotConfig configuration of the bot
type BotConfig struct {
	Token          string
	Debug          bool
	UpdatesTimeout int
	// APIEndpoint overrides the Bot API URL format, e.g. "https://api.telegram.org/bot%s/%s".
	APIEndpoint string
	// SendTimeout bounds one outgoing Bot API call including its retries.
	SendTimeout time.Duration
}

// Message a telegram message struct
type Message struct {
	ChatID    int64
	MessageID int
	Text      string
}
