package driftdb

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftdb_connections_accepted_total",
		Help: "TCP connections accepted since start.",
	})
	liveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "driftdb_connections_live",
		Help: "Currently open client connections.",
	})
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "driftdb_commands_total",
		Help: "Commands processed, by command name.",
	}, []string{"command"})
	commandErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftdb_command_errors_total",
		Help: "Commands answered with an error reply.",
	})
	keysExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "driftdb_keys_expired_total",
		Help: "Keys removed by TTL expiry, lazy or deferred.",
	})
)
