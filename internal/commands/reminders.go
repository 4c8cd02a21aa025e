package commands

import (
	"fmt"
	"strings"

	"crypto-price-bot/internal/database"
	"crypto-price-bot/internal/types"
	"crypto-price-bot/lib/helpers"
	"crypto-price-bot/lib/translation"
)

func (h *Handler) remind(m Message, cmd Command) *Reply {
	due := h.now().Add(cmd.Delay)
	id, err := database.InsertReminder(types.Reminder{
		ChatID:    m.ChatID,
		UserID:    m.UserID,
		Text:      cmd.Text,
		DueAt:     due,
		CreatedAt: h.now(),
	})
	if err != nil {
		return failure(cmd.Kind, err)
	}
	return &Reply{Text: fmt.Sprintf("⏰ Reminder \\#%d set for %s: %s",
		id,
		helpers.EscapeMarkdownV2(due.UTC().Format("Jan 02 15:04 UTC")),
		helpers.EscapeMarkdownV2(cmd.Text),
	)}
}

func (h *Handler) reminders(m Message) *Reply {
	reminders, err := database.GetRemindersByChatID(m.ChatID)
	if err != nil {
		return failure(KindReminders, err)
	}
	if len(reminders) == 0 {
		return &Reply{Text: helpers.EscapeMarkdownV2(translation.Translate("No pending reminders."))}
	}

	var b strings.Builder
	b.WriteString("⏰ *Pending reminders*\n\n")
	for _, r := range reminders {
		fmt.Fprintf(&b, "\\#%d %s: %s\n",
			r.ID,
			helpers.EscapeMarkdownV2(helpers.FormatDate(r.DueAt)),
			helpers.EscapeMarkdownV2(r.Text),
		)
	}
	return &Reply{Text: b.String()}
}
