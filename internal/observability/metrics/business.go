package metrics

import (
	"database/sql"
)

// Session creation reasons.
const (
	SessionReasonNew     = "new"
	SessionReasonExpired = "expired"
	SessionReasonUnknown = "unknown"
)

// RecordSessionCreated records a new session. Reason tells whether the
// client had no session, an expired one or one the store did not know.
func RecordSessionCreated(reason string) {
	SessionsCreatedTotal.WithLabelValues(reason).Inc()
}

// RecordSessionReused records a session continued within its idle timeout.
func RecordSessionReused() {
	SessionsReusedTotal.Inc()
}

// RecordSessionsPruned records the number of sessions deleted by retention.
func RecordSessionsPruned(n int64) {
	if n > 0 {
		SessionsPrunedTotal.Add(float64(n))
	}
}

// RecordInteraction records a logged interaction.
func RecordInteraction(interactionType string, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}
	InteractionsTotal.WithLabelValues(interactionType, status).Inc()
}

// UpdateDBConnectionStats copies pool statistics into the gauges.
func UpdateDBConnectionStats(stats sql.DBStats) {
	DBConnectionsInUse.Set(float64(stats.InUse))
	DBConnectionsIdle.Set(float64(stats.Idle))
	DBConnectionWaitSeconds.Set(stats.WaitDuration.Seconds())
}
