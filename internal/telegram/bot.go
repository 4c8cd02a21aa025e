package telegram

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"crypto-price-bot/internal/commands"
	"crypto-price-bot/internal/gateway"

	"github.com/davecgh/go-spew/spew"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const defaultSendTimeout = 60 * time.Second

// Bot telegram interaction client
type Bot struct {
	API      *tgbotapi.BotAPI
	Config   BotConfig
	gw       *gateway.Gateway
	handler  *commands.Handler
	metrics  *BotMetrics
	sendOpts []gateway.Option
}

// NewBot creates new telegram bot. Outgoing calls run through gw in bypass mode with sendOpts
// applied on top.
func NewBot(c BotConfig, gw *gateway.Gateway, handler *commands.Handler, metrics *BotMetrics, sendOpts ...gateway.Option) (*Bot, error) {
	endpoint := c.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = defaultSendTimeout
	}
	bot, err := tgbotapi.NewBotAPIWithClient(c.Token, endpoint, &http.Client{Timeout: httpTimeout(c)})
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}

	bot.Debug = c.Debug

	return &Bot{
		API:      bot,
		Config:   c,
		gw:       gw,
		handler:  handler,
		metrics:  metrics,
		sendOpts: append([]gateway.Option{gateway.WithoutQueue()}, sendOpts...),
	}, nil
}

// httpTimeout bounds one Bot API request. Long polling keeps getUpdates open for
// UpdatesTimeout seconds, so the bound has to outlast it.
func httpTimeout(c BotConfig) time.Duration {
	timeout := c.SendTimeout
	if poll := time.Duration(c.UpdatesTimeout)*time.Second + 10*time.Second; poll > timeout {
		timeout = poll
	}
	return timeout
}

// GetUpdatesChannel starts long polling.
func (b *Bot) GetUpdatesChannel() tgbotapi.UpdatesChannel {
	updatesConfig := tgbotapi.NewUpdate(0)
	if b.Config.UpdatesTimeout > 0 {
		updatesConfig.Timeout = b.Config.UpdatesTimeout
	}
	return b.API.GetUpdatesChan(updatesConfig)
}

// SetWebhook registers url with Telegram. A non-empty secret is echoed back by Telegram in
// the X-Telegram-Bot-Api-Secret-Token header.
func (b *Bot) SetWebhook(ctx context.Context, url, secret string) error {
	params := tgbotapi.Params{}
	params.AddNonEmpty("url", url)
	params.AddNonEmpty("secret_token", secret)
	_, err := gateway.Do(ctx, b.gw, "", func(ctx context.Context) (*tgbotapi.APIResponse, error) {
		return gateway.Await(ctx, func() (*tgbotapi.APIResponse, error) {
			resp, err := b.API.MakeRequest("setWebhook", params)
			return resp, mapError("setWebhook", err)
		})
	}, b.sendOpts...)
	return errors.Wrap(err, "could not set webhook")
}

// Send delivers c, retrying while Telegram answers 429.
func (b *Bot) Send(ctx context.Context, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, b.Config.SendTimeout)
	defer cancel()

	return gateway.Do(ctx, b.gw, "", func(ctx context.Context) (tgbotapi.Message, error) {
		return gateway.Await(ctx, func() (tgbotapi.Message, error) {
			m, err := b.API.Send(c)
			return m, mapError(methodName(c), err)
		})
	}, b.sendOpts...)
}

// SendMessage sends a MarkdownV2 telegram message
func (b *Bot) SendMessage(ctx context.Context, m Message) error {
	msg := tgbotapi.NewMessage(m.ChatID, m.Text)
	msg.ReplyToMessageID = m.MessageID
	msg.DisableWebPagePreview = true
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	_, err := b.Send(ctx, msg)
	return errors.Wrapf(err, "could not send message to chat %d", m.ChatID)
}

func (b *Bot) sendPhoto(ctx context.Context, chatID int64, replyTo int, data []byte, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{
		Name:  "chart.png",
		Bytes: data,
	})
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeMarkdownV2
	photo.ReplyToMessageID = replyTo
	_, err := b.Send(ctx, photo)
	return errors.Wrapf(err, "could not send chart to chat %d", chatID)
}

// methodName names the Bot API method behind c for error reports.
func methodName(c tgbotapi.Chattable) string {
	switch c.(type) {
	case tgbotapi.MessageConfig, *tgbotapi.MessageConfig:
		return "sendMessage"
	case tgbotapi.PhotoConfig, *tgbotapi.PhotoConfig:
		return "sendPhoto"
	case tgbotapi.DeleteMessageConfig:
		return "deleteMessage"
	case tgbotapi.EditMessageTextConfig:
		return "editMessageText"
	}
	return fmt.Sprintf("%T", c)
}

// mapError turns Telegram 429 answers into gateway status errors.
func mapError(method string, err error) error {
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) && tgErr.Code == http.StatusTooManyRequests {
		se := gateway.NewStatusError(tgErr.Code, method, []byte(tgErr.Message))
		se.RetryAfter = time.Duration(tgErr.RetryAfter) * time.Second
		return se
	}
	return err
}

// HandleUpdate processes Telegram updates
func (b *Bot) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("🔥 Recovered from panic while handling update %d: %v", u.UpdateID, r)
		}
	}()

	msg := u.Message
	if msg == nil {
		msg = u.ChannelPost
	}
	if msg == nil || msg.Text == "" {
		if b.Config.Debug {
			log.Debugf("ignoring update without text:\n%s", spew.Sdump(u))
		}
		return
	}

	m := commands.Message{ChatID: msg.Chat.ID, Text: msg.Text}
	if msg.From != nil {
		m.UserID = msg.From.ID
		m.Username = msg.From.UserName
	}

	reply := b.handler.Handle(ctx, m)
	if reply == nil {
		return
	}
	b.metrics.messageHandled(msg.Chat.ID, chatName(msg.Chat))

	var err error
	if len(reply.Photo) > 0 {
		err = b.sendPhoto(ctx, msg.Chat.ID, msg.MessageID, reply.Photo, reply.Text)
	} else {
		err = b.SendMessage(ctx, Message{ChatID: msg.Chat.ID, MessageID: msg.MessageID, Text: reply.Text})
	}
	if err != nil {
		log.Errorf("❌ Failed to send reply: %v", err)
		return
	}
	b.metrics.commandProcessed()
}

func chatName(c *tgbotapi.Chat) string {
	if c.Title != "" {
		return c.Title
	}
	return fmt.Sprintf("%s-%d", "PrivateChat", c.ID)
}

// Notify sends an unsolicited MarkdownV2 message, e.g. a triggered alert.
func (b *Bot) Notify(ctx context.Context, chatID int64, text string) error {
	return b.SendMessage(ctx, Message{ChatID: chatID, Text: text})
}
