package database

import (
	"time"

	"crypto-price-bot/internal/types"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// InsertAlert saves an alert and returns its id.
func InsertAlert(a types.Alert) (int64, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	res, err := DB.Exec(`
	INSERT INTO alerts (chat_id, coin_id, symbol, target, direction, created_at)
	VALUES (?, ?, ?, ?, ?, ?);`,
		a.ChatID, a.CoinID, a.Symbol, a.Target, a.Direction, a.CreatedAt.Unix())
	if err != nil {
		return 0, errors.Wrap(err, "failed to insert alert")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read alert id")
	}
	log.Debugf("Alert inserted: ID: %d, ChatID: %d, Coin: %s, Target: %f, Direction: %s", id, a.ChatID, a.CoinID, a.Target, a.Direction)
	return id, nil
}

// GetAllAlerts fetches all alerts from the database
func GetAllAlerts() ([]types.Alert, error) {
	return queryAlerts(`SELECT id, chat_id, coin_id, symbol, target, direction, created_at FROM alerts ORDER BY id;`)
}

// GetAlertsByChatID fetches all alerts for a specific chat ID
func GetAlertsByChatID(chatID int64) ([]types.Alert, error) {
	alerts, err := queryAlerts(`SELECT id, chat_id, coin_id, symbol, target, direction, created_at FROM alerts WHERE chat_id = ? ORDER BY id;`, chatID)
	return alerts, errors.Wrapf(err, "chat %d", chatID)
}

func queryAlerts(query string, args ...any) ([]types.Alert, error) {
	rows, err := DB.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query alerts")
	}
	defer rows.Close()

	var alerts []types.Alert
	for rows.Next() {
		var alert types.Alert
		var createdAt int64
		if err := rows.Scan(&alert.ID, &alert.ChatID, &alert.CoinID, &alert.Symbol, &alert.Target, &alert.Direction, &createdAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan alert")
		}
		alert.CreatedAt = time.Unix(createdAt, 0)
		alerts = append(alerts, alert)
	}
	return alerts, errors.Wrap(rows.Err(), "failed to read alerts")
}

// DeleteAlert removes a triggered alert from the database
func DeleteAlert(alertID int64) error {
	_, err := DB.Exec(`DELETE FROM alerts WHERE id = ?;`, alertID)
	return errors.Wrap(err, "failed to delete alert")
}

// DeleteChatAlert removes an alert only if it belongs to chatID. It reports whether a row was deleted.
func DeleteChatAlert(chatID, alertID int64) (bool, error) {
	res, err := DB.Exec(`DELETE FROM alerts WHERE id = ? AND chat_id = ?;`, alertID, chatID)
	if err != nil {
		return false, errors.Wrap(err, "failed to delete alert")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "failed to delete alert")
	}
	return n > 0, nil
}
