package engage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var followsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "skyengage_follows_total",
	Help: "Number of follow attempts, by result",
}, []string{"result"})

var likesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "skyengage_likes_total",
	Help: "Number of like attempts, by result",
}, []string{"result"})

var messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "skyengage_messages_total",
	Help: "Number of direct message attempts, by result",
}, []string{"result"})

var accountsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "skyengage_accounts_processed_total",
	Help: "Number of account runs, by final status",
}, []string{"status"})

var runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "skyengage_run_duration_seconds",
	Help:    "Duration of a full pass over all configured accounts",
	Buckets: prometheus.ExponentialBuckets(1, 2, 14),
})
