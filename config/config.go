package config

import (
	"sync"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var once sync.Once

var envKeys = map[string]string{
	"telegram_bot_token":      "TELEGRAM_BOT_TOKEN",
	"telegram_api_endpoint":   "TELEGRAM_API_ENDPOINT",
	"webhook_url":             "WEBHOOK_URL",
	"webhook_secret":          "WEBHOOK_SECRET",
	"cron_secret":             "CRON_SECRET",
	"port":                    "PORT",
	"metrics_port":            "METRICS_PORT",
	"db_path":                 "DB_PATH",
	"coingecko_api_key":       "COINGECKO_API_KEY",
	"coingecko_pro":           "COINGECKO_PRO",
	"etherscan_api_key":       "ETHERSCAN_API_KEY",
	"ai_api_key":              "AI_API_KEY",
	"ai_base_url":             "AI_BASE_URL",
	"ai_model":                "AI_MODEL",
	"api_pro_key":             "API_PRO_KEY",
	"redis_addr":              "REDIS_ADDR",
	"redis_password":          "REDIS_PASSWORD",
	"gateway_min_interval_ms": "GATEWAY_MIN_INTERVAL_MS",
	"alert_interval":          "ALERT_INTERVAL",
	"debug":                   "DEBUG",
	"lang":                    "LANG",
}

// InitConfig loads .env when present and binds the environment. Safe to call many times.
func InitConfig() {
	once.Do(func() {
		if err := godotenv.Load(); err == nil {
			log.Debug("Loaded .env")
		}

		viper.AutomaticEnv()
		for key, env := range envKeys {
			_ = viper.BindEnv(key, env)
		}

		viper.SetDefault("port", 8080)
		viper.SetDefault("metrics_port", 0)
		viper.SetDefault("db_path", "/app/data/bot.db")
		viper.SetDefault("coingecko_pro", false)
		viper.SetDefault("gateway_min_interval_ms", 1200)
		viper.SetDefault("alert_interval", "5m")
		viper.SetDefault("debug", false)
		viper.SetDefault("lang", "en")
	})
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}

// GetDuration accepts Go durations ("90s", "5m"); plain numbers are read as nanoseconds by viper.
func GetDuration(key string) time.Duration {
	InitConfig()
	return viper.GetDuration(key)
}
