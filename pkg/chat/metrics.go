package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	messagesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_messages_sent_total",
			Help: "Messages created by kind",
		},
		[]string{"kind"},
	)
	chatsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chatsync_chats_created_total",
			Help: "Conversations created",
		},
	)
	markReads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_mark_read_total",
			Help: "Read cursor updates by result",
		},
		[]string{"result"},
	)
	sessionsOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_sessions_open",
			Help: "Open chat sessions",
		},
	)
	feedsBound = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_feeds_bound",
			Help: "Sessions with live feeds bound to a conversation",
		},
	)
)

func init() {
	prometheus.MustRegister(messagesSent, chatsCreated, markReads, sessionsOpen, feedsBound)
}
