package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"crypto-price-bot/internal/coingecko"
	"crypto-price-bot/internal/commands"
	"crypto-price-bot/internal/database"
	"crypto-price-bot/internal/dexscreener"
	"crypto-price-bot/internal/etherscan"
	"crypto-price-bot/internal/gateway"
	"crypto-price-bot/internal/price"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type stubPrices struct{}

func (stubPrices) Lookup(ctx context.Context, query string) (*price.Quote, error) {
	return &price.Quote{ID: "bitcoin", Name: "Bitcoin", Symbol: "BTC", USD: 67000, Source: price.SourceCoinGecko}, nil
}

func (stubPrices) History(ctx context.Context, query string, days int) (coingecko.Coin, []coingecko.Point, error) {
	return coingecko.Coin{}, nil, price.ErrNotFound
}

type stubTokens struct{}

func (stubTokens) BestPair(ctx context.Context, address string) (*dexscreener.Pair, error) {
	return nil, dexscreener.ErrNoPairs
}

type stubGas struct{}

func (stubGas) GasOracle(ctx context.Context, opts ...gateway.Option) (*etherscan.Gas, error) {
	return &etherscan.Gas{Safe: 1, Propose: 2, Fast: 3}, nil
}

// fakeTelegram emulates the Bot API. The first throttled sendMessage calls answer 429.
type fakeTelegram struct {
	mu        sync.Mutex
	throttled int
	sent      []string
	// hang blocks sendMessage until closed
	hang chan struct{}
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Test","username":"test_bot"}}`))
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		if f.hang != nil {
			<-f.hang
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.throttled > 0 {
			f.throttled--
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 1","parameters":{"retry_after":1}}`))
			return
		}
		f.sent = append(f.sent, r.FormValue("text"))
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":5,"date":0,"chat":{"id":1,"type":"private"}}}`))
	case strings.HasSuffix(r.URL.Path, "/setWebhook"):
		if r.FormValue("secret_token") != "s3cret" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"missing secret"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
	}
}

func (f *fakeTelegram) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func newTestBot(t *testing.T, tg *fakeTelegram) (*Bot, *BotMetrics) {
	t.Helper()
	if err := database.InitDB(":memory:"); err != nil {
		t.Fatalf("init db: %v", err)
	}
	t.Cleanup(func() { _ = database.CloseDB() })

	srv := httptest.NewServer(tg)
	t.Cleanup(srv.Close)
	gw := gateway.New(gateway.Config{})
	t.Cleanup(gw.Close)

	metrics := NewBotMetrics(prometheus.NewRegistry())
	handler := commands.NewHandler(stubPrices{}, stubTokens{}, stubGas{}, nil)
	bot, err := NewBot(BotConfig{Token: "123:abc", APIEndpoint: srv.URL + "/bot%s/%s"}, gw, handler, metrics,
		gateway.WithBackoff(5*time.Millisecond, 10*time.Millisecond, 2))
	if err != nil {
		t.Fatalf("new bot: %v", err)
	}
	return bot, metrics
}

func textUpdate(text string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: 1,
		Message: &tgbotapi.Message{
			MessageID: 3,
			Text:      text,
			Chat:      &tgbotapi.Chat{ID: 1, Type: "private"},
			From:      &tgbotapi.User{ID: 2, UserName: "alice"},
		},
	}
}

func TestHandleUpdate_RepliesAndCounts(t *testing.T) {
	tg := &fakeTelegram{}
	bot, metrics := newTestBot(t, tg)

	bot.HandleUpdate(context.Background(), textUpdate("/p btc"))
	bot.HandleUpdate(context.Background(), textUpdate("just chatting"))
	bot.HandleUpdate(context.Background(), tgbotapi.Update{UpdateID: 2})

	sent := tg.messages()
	if len(sent) != 1 || !strings.Contains(sent[0], "Bitcoin") {
		t.Fatalf("expected one price reply, got %q", sent)
	}
	if v := testutil.ToFloat64(metrics.CommandsProcessed); v != 1 {
		t.Fatalf("expected 1 processed command, got %v", v)
	}
	if v := testutil.ToFloat64(metrics.ChannelsCount); v != 1 {
		t.Fatalf("expected 1 channel, got %v", v)
	}
}

func TestSend_RetriesOn429(t *testing.T) {
	tg := &fakeTelegram{throttled: 2}
	bot, _ := newTestBot(t, tg)

	if err := bot.SendMessage(context.Background(), Message{ChatID: 1, Text: "hello"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sent := tg.messages(); len(sent) != 1 || sent[0] != "hello" {
		t.Fatalf("unexpected messages %q", sent)
	}
}

func TestSend_GivesUpAfterBudget(t *testing.T) {
	tg := &fakeTelegram{throttled: 100}
	bot, _ := newTestBot(t, tg)
	bot.sendOpts = append(bot.sendOpts, gateway.WithMaxRetries(2))

	err := bot.SendMessage(context.Background(), Message{ChatID: 1, Text: "hello"})
	var rle *gateway.RateLimitExceededError
	if !errors.As(err, &rle) || rle.Attempts != 3 {
		t.Fatalf("expected rate limit exhaustion after 3 attempts, got %v", err)
	}
	var se *gateway.StatusError
	if !errors.As(err, &se) || se.RetryAfter != time.Second {
		t.Fatalf("expected the 429 with retry_after to be kept, got %v", err)
	}
	if se.URL != "sendMessage" {
		t.Fatalf("expected the Bot API method in the error, got %q", se.URL)
	}
}

func TestSend_TimeoutBoundsHungCall(t *testing.T) {
	tg := &fakeTelegram{hang: make(chan struct{})}
	bot, _ := newTestBot(t, tg)
	defer close(tg.hang)
	bot.Config.SendTimeout = 100 * time.Millisecond

	start := time.Now()
	err := bot.SendMessage(context.Background(), Message{ChatID: 1, Text: "hello"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("send blocked for %v", elapsed)
	}
}

func TestMethodName(t *testing.T) {
	if got := methodName(tgbotapi.NewMessage(1, "hi")); got != "sendMessage" {
		t.Fatalf("got %q", got)
	}
	if got := methodName(tgbotapi.NewPhoto(1, tgbotapi.FileBytes{Name: "c.png", Bytes: []byte{1}})); got != "sendPhoto" {
		t.Fatalf("got %q", got)
	}
}

func TestHTTPTimeoutOutlastsLongPolling(t *testing.T) {
	if got := httpTimeout(BotConfig{SendTimeout: time.Minute, UpdatesTimeout: 60}); got != 70*time.Second {
		t.Fatalf("got %v", got)
	}
	if got := httpTimeout(BotConfig{SendTimeout: 2 * time.Minute}); got != 2*time.Minute {
		t.Fatalf("got %v", got)
	}
}

func TestSetWebhook(t *testing.T) {
	bot, _ := newTestBot(t, &fakeTelegram{})

	if err := bot.SetWebhook(context.Background(), "https://example.com/webhook", "s3cret"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := bot.SetWebhook(context.Background(), "https://example.com/webhook", ""); err == nil {
		t.Fatalf("expected error without secret")
	}
}

func TestMetricsPersistence(t *testing.T) {
	if err := database.InitDB(":memory:"); err != nil {
		t.Fatalf("init db: %v", err)
	}
	t.Cleanup(func() { _ = database.CloseDB() })

	m := NewBotMetrics(prometheus.NewRegistry())
	m.messageHandled(-100, "Traders")
	m.messageHandled(-100, "Traders")
	m.commandProcessed()
	m.SaveToDB()

	restored := NewBotMetrics(prometheus.NewRegistry())
	restored.LoadFromDB()
	if v := testutil.ToFloat64(restored.MessagesHandled); v != 2 {
		t.Fatalf("expected 2 messages, got %v", v)
	}
	if v := testutil.ToFloat64(restored.CommandsProcessed); v != 1 {
		t.Fatalf("expected 1 command, got %v", v)
	}
	if v := testutil.ToFloat64(restored.MessagesPerChannel.WithLabelValues("-100", "Traders")); v != 2 {
		t.Fatalf("expected 2 messages for the channel, got %v", v)
	}
	if v := testutil.ToFloat64(restored.ChannelsCount); v != 1 {
		t.Fatalf("expected 1 channel, got %v", v)
	}
}
