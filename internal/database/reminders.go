package database

import (
	"time"

	"crypto-price-bot/internal/types"

	"github.com/pkg/errors"
)

func InsertReminder(r types.Reminder) (int64, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	res, err := DB.Exec(`
	INSERT INTO reminders (chat_id, user_id, text, due_at, created_at)
	VALUES (?, ?, ?, ?, ?);`,
		r.ChatID, r.UserID, r.Text, r.DueAt.Unix(), r.CreatedAt.Unix())
	if err != nil {
		return 0, errors.Wrap(err, "failed to insert reminder")
	}
	id, err := res.LastInsertId()
	return id, errors.Wrap(err, "failed to read reminder id")
}

// GetDueReminders returns reminders due at or before now, oldest first.
func GetDueReminders(now time.Time) ([]types.Reminder, error) {
	return queryReminders(`SELECT id, chat_id, user_id, text, due_at, created_at FROM reminders WHERE due_at <= ? ORDER BY due_at, id;`, now.Unix())
}

func GetRemindersByChatID(chatID int64) ([]types.Reminder, error) {
	return queryReminders(`SELECT id, chat_id, user_id, text, due_at, created_at FROM reminders WHERE chat_id = ? ORDER BY due_at, id;`, chatID)
}

func queryReminders(query string, args ...any) ([]types.Reminder, error) {
	rows, err := DB.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query reminders")
	}
	defer rows.Close()

	var reminders []types.Reminder
	for rows.Next() {
		var r types.Reminder
		var dueAt, createdAt int64
		if err := rows.Scan(&r.ID, &r.ChatID, &r.UserID, &r.Text, &dueAt, &createdAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan reminder")
		}
		r.DueAt = time.Unix(dueAt, 0)
		r.CreatedAt = time.Unix(createdAt, 0)
		reminders = append(reminders, r)
	}
	return reminders, errors.Wrap(rows.Err(), "failed to read reminders")
}

func DeleteReminder(id int64) error {
	_, err := DB.Exec(`DELETE FROM reminders WHERE id = ?;`, id)
	return errors.Wrap(err, "failed to delete reminder")
}
