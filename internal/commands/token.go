package commands

import (
	"context"
	"fmt"
	"strings"

	"crypto-price-bot/internal/database"
	"crypto-price-bot/internal/dexscreener"
	"crypto-price-bot/internal/types"
	"crypto-price-bot/lib/helpers"

	log "github.com/sirupsen/logrus"
)

func (h *Handler) token(ctx context.Context, m Message, cmd Command) *Reply {
	pair, err := h.tokens.BestPair(ctx, cmd.Address)
	if err != nil {
		return failure(cmd.Kind, err)
	}

	var b strings.Builder
	b.WriteString(tokenCard(pair))

	owner, first, err := database.RecordFirstPost(types.FirstPost{
		ChatID:   m.ChatID,
		Address:  cmd.Address,
		Chain:    pair.ChainID,
		Symbol:   pair.BaseToken.Symbol,
		UserID:   m.UserID,
		Username: m.Username,
		PriceUSD: pair.Price(),
		PostedAt: h.now(),
	})
	switch {
	case err != nil:
		log.Errorf("❌ Failed to record first post of %s: %v", cmd.Address, err)
	case first:
		fmt.Fprintf(&b, "\n👑 First call by %s", helpers.EscapeMarkdownV2(displayName(m.UserID, m.Username)))
	default:
		fmt.Fprintf(&b, "\n👑 First called by %s %s at $%s",
			helpers.EscapeMarkdownV2(displayName(owner.UserID, owner.Username)),
			helpers.EscapeMarkdownV2(helpers.FormatDate(owner.PostedAt)),
			helpers.FormatPriceUS(owner.PriceUSD, true),
		)
		if owner.PriceUSD > 0 && pair.Price() > 0 {
			fmt.Fprintf(&b, " \\(%s\\)", helpers.EscapeMarkdownV2(fmt.Sprintf("%.2fx", pair.Price()/owner.PriceUSD)))
		}
	}
	return &Reply{Text: b.String()}
}

func tokenCard(p *dexscreener.Pair) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* \\(%s\\) on %s \\(%s\\)\n\n",
		helpers.EscapeMarkdownV2(p.BaseToken.Symbol),
		helpers.EscapeMarkdownV2(p.BaseToken.Name),
		helpers.EscapeMarkdownV2(p.ChainID),
		helpers.EscapeMarkdownV2(p.DexID),
	)
	fmt.Fprintf(&b, "💵 Price: *$%s*\n", helpers.FormatPriceUS(p.Price(), true))
	fmt.Fprintf(&b, "%s 24h: *%s*\n", trendEmoji(p.PriceChange.H24), helpers.EscapeMarkdownV2(helpers.FormatPercentage(p.PriceChange.H24)))
	fmt.Fprintf(&b, "💧 Liquidity: *%s*\n", helpers.EscapeMarkdownV2(helpers.FormatCompactUSD(p.LiquidityUSD())))
	fmt.Fprintf(&b, "📊 Vol 24h: *%s*\n", helpers.EscapeMarkdownV2(helpers.FormatCompactUSD(p.Volume.H24)))
	if p.MarketCap > 0 {
		fmt.Fprintf(&b, "🏦 MCap: *%s*\n", helpers.EscapeMarkdownV2(helpers.FormatCompactUSD(p.MarketCap)))
	} else if p.FDV > 0 {
		fmt.Fprintf(&b, "🏦 FDV: *%s*\n", helpers.EscapeMarkdownV2(helpers.FormatCompactUSD(p.FDV)))
	}
	if p.URL != "" {
		fmt.Fprintf(&b, "[DexScreener](%s)\n", p.URL)
	}
	return b.String()
}

func displayName(userID int64, username string) string {
	if username != "" {
		return "@" + username
	}
	return fmt.Sprintf("user %d", userID)
}

func (h *Handler) leaderboard(m Message) *Reply {
	entries, err := database.Leaderboard(m.ChatID, 10)
	if err != nil {
		return failure(KindLeaderboard, err)
	}
	if len(entries) == 0 {
		return &Reply{Text: helpers.EscapeMarkdownV2("No token calls in this chat yet. Paste a token address to make the first one.")}
	}

	var b strings.Builder
	b.WriteString("🏆 *Top callers*\n\n")
	for i, e := range entries {
		fmt.Fprintf(&b, "%d\\. %s: %s\n", i+1,
			helpers.EscapeMarkdownV2(displayName(e.UserID, e.Username)),
			helpers.EscapeMarkdownV2(pluralCalls(e.Calls)))
	}
	return &Reply{Text: b.String()}
}

func pluralCalls(n int64) string {
	if n == 1 {
		return "1 call"
	}
	return helpers.FormatCount(n) + " calls"
}
