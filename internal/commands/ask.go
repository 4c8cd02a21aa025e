package commands

import (
	"context"

	"crypto-price-bot/lib/helpers"
	"crypto-price-bot/lib/translation"
)

func (h *Handler) ask(ctx context.Context, cmd Command) *Reply {
	if h.ai == nil {
		return &Reply{Text: helpers.EscapeMarkdownV2(translation.Translate("AI answers are not configured for this bot."))}
	}
	answer, err := h.ai.Ask(ctx, cmd.Text)
	if err != nil {
		return failure(cmd.Kind, err)
	}
	return &Reply{Text: "🤖 " + helpers.EscapeMarkdownV2(answer)}
}
