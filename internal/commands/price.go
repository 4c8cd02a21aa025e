package commands

import (
	"context"
	"fmt"
	"strings"

	"crypto-price-bot/internal/price"
	"crypto-price-bot/lib/helpers"
)

func (h *Handler) price(ctx context.Context, cmd Command) *Reply {
	q, err := h.prices.Lookup(ctx, cmd.Query)
	if err != nil {
		return failure(cmd.Kind, err)
	}
	return &Reply{Text: priceCard(q)}
}

func priceCard(q *price.Quote) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s \\(%s\\)*\n\n", helpers.EscapeMarkdownV2(q.Name), helpers.EscapeMarkdownV2(q.Symbol))
	fmt.Fprintf(&b, "💵 Price: *$%s*\n", helpers.FormatPriceUS(q.USD, true))
	fmt.Fprintf(&b, "%s 24h: *%s*\n", trendEmoji(q.Change24h), helpers.EscapeMarkdownV2(helpers.FormatPercentage(q.Change24h)))
	if q.MarketCap > 0 {
		fmt.Fprintf(&b, "🏦 MCap: *%s*\n", helpers.EscapeMarkdownV2(helpers.FormatCompactUSD(q.MarketCap)))
	}
	if q.Volume24h > 0 {
		fmt.Fprintf(&b, "📊 Vol 24h: *%s*\n", helpers.EscapeMarkdownV2(helpers.FormatCompactUSD(q.Volume24h)))
	}
	if q.Source == price.SourceCoinPaprika {
		fmt.Fprintf(&b, "\n[%s on CoinPaprika](https://coinpaprika.com/coin/%s/) 🌶", helpers.EscapeMarkdownV2(q.Name), q.ID)
	} else {
		fmt.Fprintf(&b, "\n[%s on CoinGecko](https://www.coingecko.com/en/coins/%s)", helpers.EscapeMarkdownV2(q.Name), q.ID)
	}
	return b.String()
}

func trendEmoji(change float64) string {
	if change < 0 {
		return "📉"
	}
	return "📈"
}
