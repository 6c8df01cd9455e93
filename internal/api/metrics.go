package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/campioncollege/beadle-core/internal/auth"
	"github.com/campioncollege/beadle-core/internal/slip"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	MQTT          MQTTMetrics     `json:"mqtt"`
	InfluxDB      InfluxMetrics   `json:"influxdb"`
	Audit         AuditMetrics    `json:"audit"`
	Database      DatabaseMetrics `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool   `json:"connected"`
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
}

// InfluxMetrics reports whether telemetry is being written.
type InfluxMetrics struct {
	Connected bool `json:"connected"`
}

// AuditMetrics reports audit entries lost to a full queue.
type AuditMetrics struct {
	Dropped int64 `json:"dropped"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns runtime and dependency statistics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		InfluxDB: InfluxMetrics{
			Connected: s.influx.IsConnected(),
		},
	}

	if s.mqtt != nil {
		stats := s.mqtt.Stats()
		metrics.MQTT = MQTTMetrics{
			Connected: stats.Connected,
			Published: stats.Published,
			Failed:    stats.Failed,
		}
	}

	if s.audit != nil {
		metrics.Audit.Dropped = s.audit.Dropped()
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}

// dashboardRole is one catalog entry with how many users hold it.
type dashboardRole struct {
	auth.Role
	Holders int `json:"holders"`
}

// handleAdminDashboard summarises accounts and slips for users who are both
// administrators and on the tech team.
func (s *Server) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	catalog, err := s.catalog.List(ctx)
	if err != nil {
		s.logger.Error("dashboard: list roles failed", "error", err)
		writeInternalError(w, "failed to build dashboard")
		return
	}
	users, err := s.users.List(ctx)
	if err != nil {
		s.logger.Error("dashboard: list users failed", "error", err)
		writeInternalError(w, "failed to build dashboard")
		return
	}

	holders := make(map[string]int, len(catalog))
	for _, u := range users {
		names, err := s.roleNames(ctx, u.ID)
		if err != nil {
			s.logger.Error("dashboard: list user roles failed", "user_id", u.ID, "error", err)
			writeInternalError(w, "failed to build dashboard")
			return
		}
		for _, n := range names {
			holders[n]++
		}
	}
	roles := make([]dashboardRole, len(catalog))
	for i, role := range catalog {
		roles[i] = dashboardRole{Role: role, Holders: holders[role.Name]}
	}

	slipCounts := make(map[string]int, 2)
	for _, st := range []slip.Status{slip.StatusPending, slip.StatusReviewed} {
		_, total, err := s.slips.List(ctx, slip.Filter{Status: st, Limit: 1})
		if err != nil {
			s.logger.Error("dashboard: count slips failed", "status", st, "error", err)
			writeInternalError(w, "failed to build dashboard")
			return
		}
		slipCounts[string(st)] = total
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"school":       s.schoolName,
		"users":        len(users),
		"roles":        roles,
		"slips":        slipCounts,
		"ws_clients":   s.hub.ClientCount(),
		"aliases":      s.gate.Aliases().Mapping(),
		"generated_at": time.Now().UTC().Format(time.RFC3339),
	})
}
