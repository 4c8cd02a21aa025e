package commands

import (
	"context"
	"time"

	"crypto-price-bot/internal/coingecko"
	"crypto-price-bot/internal/database"
	"crypto-price-bot/internal/dexscreener"
	"crypto-price-bot/internal/etherscan"
	"crypto-price-bot/internal/gateway"
	"crypto-price-bot/internal/price"
	"crypto-price-bot/internal/types"
	"crypto-price-bot/lib/helpers"
	"crypto-price-bot/lib/translation"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const chartCacheTTL = 5 * time.Minute

var errInvalidDelay = errors.New("reminder delay must be between 1s and 365d")

type PriceSource interface {
	Lookup(ctx context.Context, query string) (*price.Quote, error)
	History(ctx context.Context, query string, days int) (coingecko.Coin, []coingecko.Point, error)
}

type TokenSource interface {
	BestPair(ctx context.Context, address string) (*dexscreener.Pair, error)
}

type GasSource interface {
	GasOracle(ctx context.Context, opts ...gateway.Option) (*etherscan.Gas, error)
}

type Asker interface {
	Ask(ctx context.Context, question string, opts ...gateway.Option) (string, error)
}

// Message is the part of an incoming chat message commands need.
type Message struct {
	ChatID   int64
	UserID   int64
	Username string
	Text     string
}

// Reply is a MarkdownV2 answer. When Photo is set it is sent as an image with Text as caption.
type Reply struct {
	Text  string
	Photo []byte
}

type Handler struct {
	prices PriceSource
	tokens TokenSource
	gas    GasSource
	ai     Asker
	charts *chartCache
	now    func() time.Time
}

// NewHandler wires the command handler. ai may be nil when no model is configured.
func NewHandler(prices PriceSource, tokens TokenSource, gas GasSource, ai Asker) *Handler {
	return &Handler{
		prices: prices,
		tokens: tokens,
		gas:    gas,
		ai:     ai,
		charts: newChartCache(chartCacheTTL),
		now:    time.Now,
	}
}

// Handle answers m. It returns nil for messages the bot ignores.
func (h *Handler) Handle(ctx context.Context, m Message) *Reply {
	cmd := Parse(m.Text)
	if cmd.Kind == KindNone {
		return nil
	}
	log.Debugf("processing %s command from chat %d: %q", cmd.Kind, m.ChatID, m.Text)

	if err := database.LogQuery(types.Query{ChatID: m.ChatID, UserID: m.UserID, Kind: cmd.Kind, Text: m.Text}); err != nil {
		log.Errorf("❌ Failed to log query: %v", err)
	}

	if cmd.Usage {
		return &Reply{Text: helpers.EscapeMarkdownV2(usage(cmd.Kind))}
	}

	switch cmd.Kind {
	case KindHelp:
		return &Reply{Text: helpers.EscapeMarkdownV2(translation.Translate(helpText))}
	case KindPrice:
		return h.price(ctx, cmd)
	case KindChart:
		return h.chart(ctx, cmd)
	case KindGas:
		return h.gasPrice(ctx)
	case KindToken:
		return h.token(ctx, m, cmd)
	case KindLeaderboard:
		return h.leaderboard(m)
	case KindAsk:
		return h.ask(ctx, cmd)
	case KindAlert:
		return h.alert(ctx, m, cmd)
	case KindAlerts:
		return h.alerts(m)
	case KindDelAlert:
		return h.deleteAlert(m, cmd)
	case KindRemind:
		return h.remind(m, cmd)
	case KindReminders:
		return h.reminders(m)
	}
	return nil
}

// failure logs err and turns it into a user-facing reply.
func failure(kind string, err error) *Reply {
	switch {
	case errors.Is(err, price.ErrNotFound), errors.Is(err, dexscreener.ErrNoPairs):
		log.Debugf("command %s: %v", kind, err)
		return &Reply{Text: helpers.EscapeMarkdownV2(translation.Translate("Coin not found"))}
	case errors.Is(err, gateway.ErrRateLimitExceeded), errors.Is(err, errNoCoinGeckoID):
		log.Warnf("⚠️ command %s unavailable: %v", kind, err)
		return &Reply{Text: helpers.EscapeMarkdownV2(translation.Translate("Data is temporarily unavailable, please try again in a minute."))}
	default:
		log.Errorf("❌ command %s failed: %v", kind, err)
		return &Reply{Text: helpers.EscapeMarkdownV2(translation.Translate("Something went wrong, please try again later."))}
	}
}

const helpText = `Crypto price bot

/p <coin> or $<coin> - current price
/c <coin> [days] - price chart (1-365 days, default 7)
/gas - Ethereum gas prices
/alert <coin> <price> - notify me when the price is reached
/alerts - list alerts, /delalert <id> - delete one
/remind <2h|1d12h> <text> - reminder, /reminders - list
/leaderboard - top token callers in this chat
/ask <question> - ask the AI

Paste an EVM or Solana token address to get its DexScreener card.`

func usage(kind string) string {
	switch kind {
	case KindPrice:
		return translation.Translate("Usage: /p <coin>, e.g. /p btc")
	case KindChart:
		return translation.Translate("Usage: /c <coin> [days], e.g. /c eth 30 (1-365 days)")
	case KindAsk:
		return translation.Translate("Usage: /ask <question>")
	case KindAlert:
		return translation.Translate("Usage: /alert <coin> <price>, e.g. /alert btc 70000")
	case KindDelAlert:
		return translation.Translate("Usage: /delalert <id>, see /alerts for ids")
	case KindRemind:
		return translation.Translate("Usage: /remind <duration> <text>, e.g. /remind 1d12h check staking")
	}
	return translation.Translate(helpText)
}
