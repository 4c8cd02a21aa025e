package database

import (
	"database/sql"
	"strings"
	"time"

	"crypto-price-bot/internal/types"

	"github.com/pkg/errors"
)

// RecordFirstPost stores p unless someone already posted the address in the chat. It returns
// the owning record and whether p became the owner.
func RecordFirstPost(p types.FirstPost) (types.FirstPost, bool, error) {
	p.Address = normalizeAddress(p.Address)
	if p.PostedAt.IsZero() {
		p.PostedAt = time.Now()
	}

	res, err := DB.Exec(`
	INSERT OR IGNORE INTO first_posts (chat_id, address, chain, symbol, user_id, username, price_usd, posted_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?);`,
		p.ChatID, p.Address, p.Chain, p.Symbol, p.UserID, p.Username, p.PriceUSD, p.PostedAt.Unix())
	if err != nil {
		return types.FirstPost{}, false, errors.Wrap(err, "failed to record first post")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return types.FirstPost{}, false, errors.Wrap(err, "failed to record first post")
	}
	if n > 0 {
		return p, true, nil
	}

	owner, err := GetFirstPost(p.ChatID, p.Address)
	return owner, false, err
}

func GetFirstPost(chatID int64, address string) (types.FirstPost, error) {
	var p types.FirstPost
	var postedAt int64
	err := DB.QueryRow(`
	SELECT chat_id, address, chain, symbol, user_id, username, price_usd, posted_at
	FROM first_posts WHERE chat_id = ? AND address = ?;`, chatID, normalizeAddress(address)).
		Scan(&p.ChatID, &p.Address, &p.Chain, &p.Symbol, &p.UserID, &p.Username, &p.PriceUSD, &postedAt)
	if err == sql.ErrNoRows {
		return p, errors.Wrapf(err, "no first post for %s", address)
	}
	if err != nil {
		return p, errors.Wrap(err, "failed to get first post")
	}
	p.PostedAt = time.Unix(postedAt, 0)
	return p, nil
}

// Leaderboard ranks the chat's users by how many addresses they posted first.
func Leaderboard(chatID int64, limit int) ([]types.LeaderboardEntry, error) {
	rows, err := DB.Query(`
	SELECT user_id, MAX(username), COUNT(*) AS calls
	FROM first_posts WHERE chat_id = ?
	GROUP BY user_id
	ORDER BY calls DESC, MIN(posted_at) ASC
	LIMIT ?;`, chatID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query leaderboard")
	}
	defer rows.Close()

	var entries []types.LeaderboardEntry
	for rows.Next() {
		var e types.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Username, &e.Calls); err != nil {
			return nil, errors.Wrap(err, "failed to scan leaderboard row")
		}
		entries = append(entries, e)
	}
	return entries, errors.Wrap(rows.Err(), "failed to read leaderboard")
}

// EVM addresses are case-insensitive; Solana mints are not.
func normalizeAddress(address string) string {
	if strings.HasPrefix(address, "0x") {
		return strings.ToLower(address)
	}
	return address
}
