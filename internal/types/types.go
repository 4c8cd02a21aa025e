package types

import "time"

const (
	DirectionAbove = "above"
	DirectionBelow = "below"
)

type Alert struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chat_id"`
	CoinID    string    `json:"coin_id"`
	Symbol    string    `json:"symbol"`
	Target    float64   `json:"target"`
	Direction string    `json:"direction"` // above or below
	CreatedAt time.Time `json:"created_at"`
}

// Triggered reports whether price crosses the target in the alert's direction.
func (a Alert) Triggered(price float64) bool {
	if a.Direction == DirectionBelow {
		return price <= a.Target
	}
	return price >= a.Target
}

type Reminder struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chat_id"`
	UserID    int64     `json:"user_id"`
	Text      string    `json:"text"`
	DueAt     time.Time `json:"due_at"`
	CreatedAt time.Time `json:"created_at"`
}

// FirstPost records who first shared a token address in a chat.
type FirstPost struct {
	ChatID   int64     `json:"chat_id"`
	Address  string    `json:"address"`
	Chain    string    `json:"chain"`
	Symbol   string    `json:"symbol"`
	UserID   int64     `json:"user_id"`
	Username string    `json:"username"`
	PriceUSD float64   `json:"price_usd"`
	PostedAt time.Time `json:"posted_at"`
}

type LeaderboardEntry struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Calls    int64  `json:"calls"`
}

type Query struct {
	ChatID int64  `json:"chat_id"`
	UserID int64  `json:"user_id"`
	Kind   string `json:"kind"`
	Text   string `json:"text"`
}
