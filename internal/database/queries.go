package database

import (
	"time"

	"crypto-price-bot/internal/types"

	"github.com/pkg/errors"
)

// LogQuery records a handled user query.
func LogQuery(q types.Query) error {
	_, err := DB.Exec(`
	INSERT INTO queries (chat_id, user_id, kind, query, created_at)
	VALUES (?, ?, ?, ?, ?);`, q.ChatID, q.UserID, q.Kind, q.Text, time.Now().Unix())
	return errors.Wrap(err, "failed to log query")
}

// CountQueries returns the number of logged queries per kind.
func CountQueries() (map[string]int64, error) {
	rows, err := DB.Query(`SELECT kind, COUNT(*) FROM queries GROUP BY kind;`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count queries")
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, errors.Wrap(err, "failed to scan query count")
		}
		counts[kind] = n
	}
	return counts, errors.Wrap(rows.Err(), "failed to read query counts")
}
