package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crypto-price-bot/internal/database"
	"crypto-price-bot/internal/gateway"
	"crypto-price-bot/internal/types"
	"crypto-price-bot/lib/helpers"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// PriceSource returns USD prices for CoinGecko ids.
type PriceSource interface {
	Prices(ctx context.Context, ids []string, opts ...gateway.Option) (map[string]float64, error)
}

// Sender delivers a MarkdownV2 text to a chat.
type Sender interface {
	Notify(ctx context.Context, chatID int64, text string) error
}

// Result summarizes one checker pass.
type Result struct {
	AlertsChecked   int  `json:"alerts_checked"`
	AlertsTriggered int  `json:"alerts_triggered"`
	RemindersSent   int  `json:"reminders_sent"`
	PricesSkipped   bool `json:"prices_skipped"`
}

type Checker struct {
	prices PriceSource
	sender Sender
	now    func() time.Time

	// alertProcessingMutex ensures only one pass runs at a time
	alertProcessingMutex sync.Mutex
}

func NewChecker(prices PriceSource, sender Sender) *Checker {
	return &Checker{prices: prices, sender: sender, now: time.Now}
}

// Run performs one pass: triggered price alerts are sent and deleted, then due reminders.
// Prices are fetched fail-fast, so a rate limited upstream skips the alert part of the pass
// instead of holding the caller.
func (c *Checker) Run(ctx context.Context) (Result, error) {
	c.alertProcessingMutex.Lock()
	defer c.alertProcessingMutex.Unlock()

	log.Debug("🔄 Checking alerts...")
	var res Result

	alertErr := c.checkAlerts(ctx, &res)
	if errors.Is(alertErr, gateway.ErrRateLimitExceeded) {
		log.Warnf("⚠️ Price source rate limited, skipping alerts this pass: %v", alertErr)
		res.PricesSkipped = true
		alertErr = nil
	}

	reminderErr := c.sendReminders(ctx, &res)

	log.Debugf("✅ Alert check completed: %+v", res)
	if alertErr != nil {
		return res, alertErr
	}
	return res, reminderErr
}

func (c *Checker) checkAlerts(ctx context.Context, res *Result) error {
	alerts, err := database.GetAllAlerts()
	if err != nil {
		return errors.Wrap(err, "load alerts")
	}
	res.AlertsChecked = len(alerts)
	if len(alerts) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var ids []string
	for _, a := range alerts {
		if !seen[a.CoinID] {
			seen[a.CoinID] = true
			ids = append(ids, a.CoinID)
		}
	}

	prices, err := c.prices.Prices(ctx, ids, gateway.FailFast())
	if err != nil {
		return errors.Wrap(err, "fetch alert prices")
	}

	for _, a := range alerts {
		current, ok := prices[a.CoinID]
		if !ok {
			log.Debugf("⚠️ No price data found for %s", a.CoinID)
			continue
		}
		if !a.Triggered(current) {
			continue
		}

		if err := c.sender.Notify(ctx, a.ChatID, alertMessage(a, current)); err != nil {
			log.Errorf("❌ Failed to send price alert %d: %v", a.ID, err)
			continue
		}
		if err := database.DeleteAlert(a.ID); err != nil {
			log.Errorf("❌ Failed to delete triggered alert %d: %v", a.ID, err)
			continue
		}
		res.AlertsTriggered++
		log.Infof("✅ Price alert %d sent to chat %d", a.ID, a.ChatID)
	}
	return nil
}

func (c *Checker) sendReminders(ctx context.Context, res *Result) error {
	due, err := database.GetDueReminders(c.now())
	if err != nil {
		return errors.Wrap(err, "load reminders")
	}
	for _, r := range due {
		text := fmt.Sprintf("⏰ *Reminder*\n%s", helpers.EscapeMarkdownV2(r.Text))
		if err := c.sender.Notify(ctx, r.ChatID, text); err != nil {
			log.Errorf("❌ Failed to send reminder %d: %v", r.ID, err)
			continue
		}
		if err := database.DeleteReminder(r.ID); err != nil {
			log.Errorf("❌ Failed to delete reminder %d: %v", r.ID, err)
			continue
		}
		res.RemindersSent++
	}
	return nil
}

func alertMessage(a types.Alert, current float64) string {
	verb := "risen above"
	if a.Direction == types.DirectionBelow {
		verb = "dropped below"
	}
	return fmt.Sprintf("🚨 *Price Alert Triggered*\n\n*%s* has %s *$%s*\nCurrent Price: *$%s*",
		helpers.EscapeMarkdownV2(a.Symbol),
		verb,
		helpers.FormatPriceUS(a.Target, true),
		helpers.FormatPriceUS(current, true),
	)
}

// Start runs a pass every interval until ctx is done.
func (c *Checker) Start(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.runSafely(ctx)
			}
		}
	}()
	log.Infof("🚀 Alert service started, checking every %s.", interval)
}

func (c *Checker) runSafely(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("🔥 Panic recovered in alert checker: %v", r)
		}
	}()
	if _, err := c.Run(ctx); err != nil {
		log.Errorf("❌ Alert check failed: %v", err)
	}
}
