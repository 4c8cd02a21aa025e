package commands

import (
	"context"
	"fmt"
	"strings"

	"crypto-price-bot/internal/database"
	"crypto-price-bot/internal/price"
	"crypto-price-bot/internal/types"
	"crypto-price-bot/lib/helpers"
	"crypto-price-bot/lib/translation"

	"github.com/pkg/errors"
)

var errNoCoinGeckoID = errors.New("alerts need a CoinGecko coin id")

// alert stores a price alert. The direction follows from where the target sits relative to
// the current price.
func (h *Handler) alert(ctx context.Context, m Message, cmd Command) *Reply {
	q, err := h.prices.Lookup(ctx, cmd.Query)
	if err != nil {
		return failure(cmd.Kind, err)
	}
	if q.Source != price.SourceCoinGecko {
		return failure(cmd.Kind, errors.Wrap(errNoCoinGeckoID, q.ID))
	}

	direction := types.DirectionAbove
	if cmd.Target < q.USD {
		direction = types.DirectionBelow
	}

	id, err := database.InsertAlert(types.Alert{
		ChatID:    m.ChatID,
		CoinID:    q.ID,
		Symbol:    q.Symbol,
		Target:    cmd.Target,
		Direction: direction,
		CreatedAt: h.now(),
	})
	if err != nil {
		return failure(cmd.Kind, err)
	}

	return &Reply{Text: fmt.Sprintf("🔔 Alert \\#%d set: *%s* %s *$%s* \\(now $%s\\)",
		id,
		helpers.EscapeMarkdownV2(q.Symbol),
		direction,
		helpers.FormatPriceUS(cmd.Target, true),
		helpers.FormatPriceUS(q.USD, true),
	)}
}

func (h *Handler) alerts(m Message) *Reply {
	alerts, err := database.GetAlertsByChatID(m.ChatID)
	if err != nil {
		return failure(KindAlerts, err)
	}
	if len(alerts) == 0 {
		return &Reply{Text: helpers.EscapeMarkdownV2(translation.Translate("You have no active alerts."))}
	}

	var b strings.Builder
	b.WriteString("🔔 *Active alerts*\n\n")
	for _, a := range alerts {
		fmt.Fprintf(&b, "\\#%d *%s* %s $%s \\(%s\\)\n",
			a.ID,
			helpers.EscapeMarkdownV2(a.Symbol),
			a.Direction,
			helpers.FormatPriceUS(a.Target, true),
			helpers.EscapeMarkdownV2(helpers.FormatDate(a.CreatedAt)),
		)
	}
	return &Reply{Text: b.String()}
}

func (h *Handler) deleteAlert(m Message, cmd Command) *Reply {
	deleted, err := database.DeleteChatAlert(m.ChatID, cmd.ID)
	if err != nil {
		return failure(cmd.Kind, err)
	}
	if !deleted {
		return &Reply{Text: helpers.EscapeMarkdownV2(translation.Translate("Alert #%d not found", cmd.ID))}
	}
	return &Reply{Text: helpers.EscapeMarkdownV2(translation.Translate("Alert #%d deleted", cmd.ID))}
}
