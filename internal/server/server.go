package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"crypto-price-bot/internal/alert"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const (
	secretHeader  = "X-Telegram-Bot-Api-Secret-Token"
	maxUpdateBody = 1 << 20
	updateTimeout = 55 * time.Second
)

type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u tgbotapi.Update)
}

type Checker interface {
	Run(ctx context.Context) (alert.Result, error)
}

// QueueStats reports the gateway queue for /health.
type QueueStats interface {
	Pending() int
	InFlight() int
}

type Config struct {
	WebhookSecret string
	CronSecret    string
	Gatherer      prometheus.Gatherer
}

type Server struct {
	cfg     Config
	updates UpdateHandler
	checker Checker
	queue   QueueStats
	router  chi.Router
	// background handles updates after the webhook request returned
	background context.Context
}

func New(ctx context.Context, cfg Config, updates UpdateHandler, checker Checker, queue QueueStats) *Server {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{cfg: cfg, updates: updates, checker: checker, queue: queue, background: ctx}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/webhook", s.handleWebhook)
	r.Post("/cron/check", s.handleCron)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	r.Get("/health", s.handleHealth)
	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// handleWebhook acknowledges every parsable update right away so Telegram does not redeliver
// it, and processes it in the background.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.cfg.WebhookSecret != "" && !equalSecret(r.Header.Get(secretHeader), s.cfg.WebhookSecret) {
		log.Warn("⚠️ Rejected webhook call with a wrong secret token")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateBody)).Decode(&update); err != nil {
		log.Debugf("bad webhook payload: %v", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)

	go func() {
		ctx, cancel := context.WithTimeout(s.background, updateTimeout)
		defer cancel()
		s.updates.HandleUpdate(ctx, update)
	}()
}

func (s *Server) handleCron(w http.ResponseWriter, r *http.Request) {
	if s.cfg.CronSecret == "" {
		http.Error(w, "cron disabled", http.StatusNotFound)
		return
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !equalSecret(token, s.cfg.CronSecret) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	res, err := s.checker.Run(r.Context())
	if err != nil {
		log.Errorf("❌ Cron check failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error(), "result": res})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": res})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"pending":   s.queue.Pending(),
		"in_flight": s.queue.InFlight(),
	})
}

func equalSecret(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("failed to write response: %v", err)
	}
}
