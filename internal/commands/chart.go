package commands

import (
	"context"
	"fmt"
	"strings"

	"crypto-price-bot/internal/chart"
	"crypto-price-bot/lib/helpers"
)

func (h *Handler) chart(ctx context.Context, cmd Command) *Reply {
	cacheKey := fmt.Sprintf("%s:%d", cmd.Query, cmd.Days)
	if cachedItem, found := h.charts.get(cacheKey); found {
		return &Reply{Text: cachedItem.Caption, Photo: cachedItem.ChartData}
	}

	coin, history, err := h.prices.History(ctx, cmd.Query, cmd.Days)
	if err != nil {
		return failure(cmd.Kind, err)
	}

	points := make([]chart.Point, 0, len(history))
	for _, p := range history {
		points = append(points, chart.Point{Time: p.Time, Price: p.Price})
	}

	symbol := strings.ToUpper(coin.Symbol)
	title := fmt.Sprintf("%s (%s) %d days price chart", coin.Name, symbol, cmd.Days)
	chartData, err := chart.RenderPrice(title, points)
	if err != nil {
		return failure(cmd.Kind, err)
	}

	first, last := points[0].Price, points[len(points)-1].Price
	var change float64
	if first != 0 {
		change = (last - first) / first * 100
	}
	caption := fmt.Sprintf("*%s \\(%s\\)* %s\n$%s → $%s \\(%s\\)",
		helpers.EscapeMarkdownV2(coin.Name),
		helpers.EscapeMarkdownV2(symbol),
		helpers.EscapeMarkdownV2(fmt.Sprintf("%dd", cmd.Days)),
		helpers.FormatPriceUS(first, true),
		helpers.FormatPriceUS(last, true),
		helpers.EscapeMarkdownV2(helpers.FormatPercentage(change)),
	)

	h.charts.set(cacheKey, chartData, caption)
	return &Reply{Text: caption, Photo: chartData}
}
