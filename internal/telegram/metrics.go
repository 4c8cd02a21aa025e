package telegram

import (
	"fmt"
	"strconv"
	"sync"

	"crypto-price-bot/internal/database"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
)

type BotMetrics struct {
	CommandsProcessed  prometheus.Counter
	MessagesHandled    prometheus.Counter
	ChannelsCount      prometheus.Gauge
	MessagesPerChannel *prometheus.CounterVec
	ChannelsSet        map[int64]string
	Mutex              sync.Mutex
}

func NewBotMetrics(reg prometheus.Registerer) *BotMetrics {
	metrics := &BotMetrics{
		CommandsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pricebot",
			Subsystem: "telegram_bot",
			Name:      "commands_processed",
			Help:      "The total number of processed commands",
		}),
		MessagesHandled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pricebot",
			Subsystem: "telegram_bot",
			Name:      "messages_handled",
			Help:      "The total number of handled messages",
		}),
		ChannelsCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pricebot",
			Subsystem: "telegram_bot",
			Name:      "channels_count",
			Help:      "The current number of unique channels the bot is operating in",
		}),
		MessagesPerChannel: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pricebot",
				Subsystem: "telegram_bot",
				Name:      "messages_per_channel",
				Help:      "The total number of messages handled per channel",
			},
			[]string{"chat_id", "chat_name"},
		),
		ChannelsSet: make(map[int64]string),
	}

	if reg != nil {
		reg.MustRegister(metrics.CommandsProcessed, metrics.MessagesHandled, metrics.ChannelsCount, metrics.MessagesPerChannel)
	}
	return metrics
}

func (m *BotMetrics) commandProcessed() {
	if m == nil {
		return
	}
	m.CommandsProcessed.Inc()
}

func (m *BotMetrics) messageHandled(chatID int64, chatName string) {
	if m == nil {
		return
	}
	m.MessagesHandled.Inc()
	m.MessagesPerChannel.WithLabelValues(strconv.FormatInt(chatID, 10), chatName).Inc()

	m.Mutex.Lock()
	defer m.Mutex.Unlock()
	if _, exists := m.ChannelsSet[chatID]; !exists {
		m.ChannelsSet[chatID] = chatName
		m.ChannelsCount.Set(float64(len(m.ChannelsSet)))
	}
}

// LoadFromDB restores counters persisted by SaveToDB.
func (m *BotMetrics) LoadFromDB() {
	m.Mutex.Lock()
	defer m.Mutex.Unlock()

	commandsProcessed, _ := database.GetMetric("commands_processed")
	messagesHandled, _ := database.GetMetric("messages_handled")
	m.CommandsProcessed.Add(commandsProcessed)
	m.MessagesHandled.Add(messagesHandled)

	perChannel, err := database.GetMetricsWithLabels("messages_per_channel")
	if err != nil {
		log.Errorf("❌ Failed to load channel metrics: %v", err)
	}
	for chatIDStr, names := range perChannel {
		chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
		if err != nil {
			log.Errorf("Failed to parse chatID %s: %v", chatIDStr, err)
			continue
		}
		for chatName, value := range names {
			m.MessagesPerChannel.WithLabelValues(chatIDStr, chatName).Add(value)
			m.ChannelsSet[chatID] = chatName
		}
	}
	m.ChannelsCount.Set(float64(len(m.ChannelsSet)))

	log.Info("Metrics loaded from database.")
}

func (m *BotMetrics) SaveToDB() {
	m.Mutex.Lock()
	defer m.Mutex.Unlock()

	save := func(err error) {
		if err != nil {
			log.Errorf("❌ Failed to save metric: %v", err)
		}
	}
	save(database.SaveMetric("commands_processed", GetMetricValue(m.CommandsProcessed)))
	save(database.SaveMetric("messages_handled", GetMetricValue(m.MessagesHandled)))
	save(database.SaveMetric("channels_count", float64(len(m.ChannelsSet))))

	metricChan := make(chan prometheus.Metric)
	go func() {
		m.MessagesPerChannel.Collect(metricChan)
		close(metricChan)
	}()

	for metric := range metricChan {
		metricProto := &dto.Metric{}
		if err := metric.Write(metricProto); err != nil {
			log.Errorf("Failed to read MessagesPerChannel metric: %v", err)
			continue
		}
		var chatID, chatName string
		for _, label := range metricProto.Label {
			switch label.GetName() {
			case "chat_id":
				chatID = label.GetValue()
			case "chat_name":
				chatName = label.GetValue()
			}
		}
		save(database.SaveMetricWithLabels("messages_per_channel", chatID, chatName, metricProto.Counter.GetValue()))
	}

	log.Info("Metrics saved to database.")
}

// GetMetricValue reads the current value of a single counter or gauge.
func GetMetricValue(metric prometheus.Collector) float64 {
	metricChan := make(chan prometheus.Metric, 1)
	metric.Collect(metricChan)
	close(metricChan)

	collected, ok := <-metricChan
	if !ok {
		return 0
	}
	metricProto := &dto.Metric{}
	if err := collected.Write(metricProto); err != nil {
		log.Errorf("Failed to read metric value: %v", err)
		return 0
	}

	switch {
	case metricProto.Counter != nil:
		return metricProto.Counter.GetValue()
	case metricProto.Gauge != nil:
		return metricProto.Gauge.GetValue()
	}
	return 0
}

func (m *BotMetrics) String() string {
	m.Mutex.Lock()
	defer m.Mutex.Unlock()
	return fmt.Sprintf("commands=%.0f messages=%.0f channels=%d",
		GetMetricValue(m.CommandsProcessed), GetMetricValue(m.MessagesHandled), len(m.ChannelsSet))
}
