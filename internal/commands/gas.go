package commands

import (
	"context"
	"fmt"

	"crypto-price-bot/lib/helpers"
)

func (h *Handler) gasPrice(ctx context.Context) *Reply {
	gas, err := h.gas.GasOracle(ctx)
	if err != nil {
		return failure(KindGas, err)
	}
	gwei := func(v float64) string {
		return helpers.EscapeMarkdownV2(fmt.Sprintf("%.2f", v))
	}
	text := fmt.Sprintf("⛽ *Ethereum gas*\n\n🐢 Safe: *%s* gwei\n🚶 Standard: *%s* gwei\n🚀 Fast: *%s* gwei",
		gwei(gas.Safe), gwei(gas.Propose), gwei(gas.Fast))
	if gas.BaseFee > 0 {
		text += fmt.Sprintf("\n🔥 Base fee: *%s* gwei", gwei(gas.BaseFee))
	}
	return &Reply{Text: text}
}
