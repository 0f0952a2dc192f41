package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	opsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "core_operations_total",
			Help: "Domain operations by name and outcome.",
		},
		[]string{"op", "outcome"},
	)

	opDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "core_operation_duration_seconds",
			Help:    "Domain operation latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	voiceOccupancy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "voice_channel_members",
			Help: "Current voice channel membership count.",
		},
		[]string{"channel"},
	)

	inviteRedemptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invite_redemptions_total",
			Help: "Invite code redemption attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

// Init registers all core metrics in the default registry.
func Init() {
	prometheus.MustRegister(opsTotal, opDuration, voiceOccupancy, inviteRedemptions)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveOp records one completed domain operation.
func ObserveOp(op string, start time.Time, err error) {
	opsTotal.WithLabelValues(op, Outcome(err)).Inc()
	opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// SetVoiceOccupancy updates the membership gauge for a channel.
func SetVoiceOccupancy(channel string, count int) {
	voiceOccupancy.WithLabelValues(channel).Set(float64(count))
}

// CountInviteRedemption records an invite redemption attempt.
func CountInviteRedemption(err error) {
	inviteRedemptions.WithLabelValues(Outcome(err)).Inc()
}

// Outcome collapses an error into a low-cardinality metric label.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
