package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

type HealthResponse struct {
	Status     HealthStatus          `json:"status"`
	CheckedAt  time.Time             `json:"checked_at"`
	Components map[string]CheckEntry `json:"components"`
}

type CheckEntry struct {
	Status     HealthStatus   `json:"status"`
	Message    string         `json:"message,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CheckedAt  time.Time      `json:"checked_at"`
	DurationMs int64          `json:"duration_ms"`
}

// Pinger is satisfied by *sql.DB and *sqlx.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PendingCounter reports settlements waiting on a timer.
type PendingCounter interface {
	Pending() int
}

type HealthHandler struct {
	db        Pinger
	scheduler PendingCounter
}

func NewHealthHandler(db Pinger, scheduler PendingCounter) *HealthHandler {
	return &HealthHandler{db: db, scheduler: scheduler}
}

func (h *HealthHandler) pingHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "OK"})
}

func (h *HealthHandler) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	start := time.Now()
	err := h.db.PingContext(ctx)

	db := CheckEntry{
		Status:     HealthHealthy,
		CheckedAt:  time.Now(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		db.Status = HealthUnhealthy
		db.Message = "database unreachable"
	}

	resp := HealthResponse{
		Status:     db.Status,
		CheckedAt:  time.Now(),
		Components: map[string]CheckEntry{"postgres": db},
	}

	if h.scheduler != nil {
		resp.Components["settlement_scheduler"] = CheckEntry{
			Status:    HealthHealthy,
			Details:   map[string]any{"pending": h.scheduler.Pending()},
			CheckedAt: time.Now(),
		}
	}

	statusCode := http.StatusOK
	if resp.Status == HealthUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}
