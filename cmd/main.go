package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"crypto-price-bot/config"
	"crypto-price-bot/internal/ai"
	"crypto-price-bot/internal/alert"
	"crypto-price-bot/internal/coingecko"
	"crypto-price-bot/internal/commands"
	"crypto-price-bot/internal/database"
	"crypto-price-bot/internal/dexscreener"
	"crypto-price-bot/internal/etherscan"
	"crypto-price-bot/internal/gateway"
	"crypto-price-bot/internal/price"
	"crypto-price-bot/internal/server"
	"crypto-price-bot/internal/stats"
	"crypto-price-bot/internal/telegram"
	"crypto-price-bot/lib/translation"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const metricsSaveInterval = 5 * time.Minute

func init() {
	config.InitConfig()
	setupLogging()
}

func main() {
	translation.Configure("locales", language(config.GetString("lang")))
	log.Debugf("Using language %s", translation.GetLanguage())

	if err := database.InitDB(config.GetString("db_path")); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.CloseDB()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	gw := gateway.New(gateway.Config{
		MinInterval:    time.Duration(config.GetInt("gateway_min_interval_ms")) * time.Millisecond,
		AttemptTimeout: gateway.DefaultAttemptTimeout,
		Metrics:        gateway.NewMetrics(reg),
		Recorder:       newRecorder(ctx),
	})
	defer gw.Close()

	prices := price.NewService(
		coingecko.New(gw, "", config.GetString("coingecko_api_key"), config.GetBool("coingecko_pro")),
		price.NewPaprika(gw, config.GetString("api_pro_key")),
		price.DefaultResolveTTL,
	)

	// a nil *ai.Client must not end up in the interface
	var asker commands.Asker
	if key := config.GetString("ai_api_key"); key != "" {
		asker = ai.New(gw, ai.Config{
			APIKey:  key,
			BaseURL: config.GetString("ai_base_url"),
			Model:   config.GetString("ai_model"),
		})
	} else {
		log.Warn("⚠️ AI_API_KEY is not set, /ask is disabled")
	}

	handler := commands.NewHandler(
		prices,
		dexscreener.New(gw, ""),
		etherscan.New(gw, "", config.GetString("etherscan_api_key")),
		asker,
	)

	botMetrics := telegram.NewBotMetrics(reg)
	botMetrics.LoadFromDB()

	bot, err := telegram.NewBot(telegram.BotConfig{
		Token:          config.GetString("telegram_bot_token"),
		Debug:          config.GetBool("debug"),
		UpdatesTimeout: 60,
		APIEndpoint:    config.GetString("telegram_api_endpoint"),
	}, gw, handler, botMetrics)
	if err != nil {
		log.Fatalf("Failed to create bot: %v", err)
	}

	checker := alert.NewChecker(prices, bot)
	if interval := config.GetDuration("alert_interval"); interval > 0 {
		checker.Start(ctx, interval)
	}

	if url := config.GetString("webhook_url"); url != "" {
		if err := bot.SetWebhook(ctx, url, config.GetString("webhook_secret")); err != nil {
			log.Fatalf("Failed to set webhook: %v", err)
		}
		log.Infof("Webhook registered at %s", url)
	} else {
		go handleUpdates(ctx, bot, bot.GetUpdatesChannel())
	}

	go func() {
		ticker := time.NewTicker(metricsSaveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				botMetrics.SaveToDB()
			}
		}
	}()

	srv := server.New(ctx, server.Config{
		WebhookSecret: config.GetString("webhook_secret"),
		CronSecret:    config.GetString("cron_secret"),
		Gatherer:      reg,
	}, bot, checker, gw)

	servers := []*http.Server{{Addr: fmt.Sprintf(":%d", config.GetInt("port")), Handler: srv}}
	if mp := config.GetInt("metrics_port"); mp > 0 && mp != config.GetInt("port") {
		servers = append(servers, &http.Server{Addr: fmt.Sprintf(":%d", mp), Handler: srv})
	}
	for _, s := range servers {
		go func(s *http.Server) {
			log.Infof("Launching HTTP endpoint on %s", s.Addr)
			if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start HTTP server: %v", err)
			}
		}(s)
	}

	<-ctx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, s := range servers {
		_ = s.Shutdown(shutdownCtx)
	}
	if config.GetString("webhook_url") == "" {
		bot.API.StopReceivingUpdates()
	}
	botMetrics.SaveToDB()
	log.Infof("Metrics saved (%s), bye", botMetrics)
}

func setupLogging() {
	log.SetLevel(log.ErrorLevel)
	if config.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	log.Debug("Starting telegram bot...")
}

// language turns values like "en_US.UTF-8" into "en".
func language(lang string) string {
	lang = strings.ToLower(lang)
	if i := strings.IndexAny(lang, "_.-"); i > 0 {
		lang = lang[:i]
	}
	if lang == "" || lang == "c" || lang == "posix" {
		return "en"
	}
	return lang
}

// newRecorder stores gateway stats in Redis when REDIS_ADDR is set and reachable.
func newRecorder(ctx context.Context) stats.Recorder {
	addr := config.GetString("redis_addr")
	if addr == "" {
		return stats.NewMemoryRecorder(100)
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: config.GetString("redis_password"),
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Errorf("❌ Redis at %s is unreachable, keeping gateway stats in memory: %v", addr, err)
		_ = rdb.Close()
		return stats.NewMemoryRecorder(100)
	}
	return stats.NewRedisRecorder(rdb)
}

func handleUpdates(ctx context.Context, bot *telegram.Bot, updates tgbotapi.UpdatesChannel) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			go bot.HandleUpdate(ctx, update)
		}
	}
}
