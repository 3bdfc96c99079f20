// Package metrics declares the Prometheus collectors for the quiz lobby
// server, grouped the way the teacher's internal/v1/metrics package does:
// namespace "quiz", subsystem per feature area, gauges for current state
// and counters/histograms for cumulative/latency data.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quiz",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections.",
	})

	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quiz",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms.",
	})

	RoomPlayers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "quiz",
		Subsystem: "room",
		Name:      "players_count",
		Help:      "Current number of players in each room.",
	}, []string{"room_id"})

	ActiveGames = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quiz",
		Subsystem: "game",
		Name:      "games_active",
		Help:      "Current number of rooms with a game in progress.",
	})

	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quiz",
		Subsystem: "dispatcher",
		Name:      "commands_total",
		Help:      "Total commands processed, by command name and outcome.",
	}, []string{"command", "status"})

	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "quiz",
		Subsystem: "dispatcher",
		Name:      "command_duration_seconds",
		Help:      "Time spent processing a dispatched command.",
		Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"command"})

	BroadcastFanout = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "quiz",
		Subsystem: "messenger",
		Name:      "broadcast_fanout",
		Help:      "Number of recipients targeted by a single broadcast.",
		Buckets:   []float64{1, 2, 3, 4, 5, 6},
	})

	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "quiz",
		Subsystem: "messenger",
		Name:      "send_total",
		Help:      "Total messenger send attempts, by outcome.",
	}, []string{"outcome"})

	UserTimeoutsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quiz",
		Subsystem: "timeout",
		Name:      "user_timeouts_started_total",
		Help:      "Total user grace-period timers started.",
	})

	UserTimeoutsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quiz",
		Subsystem: "timeout",
		Name:      "user_timeouts_expired_total",
		Help:      "Total user grace-period timers that fired and removed a user.",
	})

	UserTimeoutsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quiz",
		Subsystem: "timeout",
		Name:      "user_timeouts_cancelled_total",
		Help:      "Total user grace-period timers cancelled by reconnect or replaced by a newer disconnect.",
	})
)

func IncConnection() { ActiveConnections.Inc() }
func DecConnection() { ActiveConnections.Dec() }
