package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Probe checks a single backing dependency within the given timeout.
type Probe func(ctx context.Context, timeout time.Duration) error

// Handler exposes liveness and readiness endpoints. Readiness covers the
// dependencies the service owns: Postgres and Redis. The payment gateway is
// deliberately excluded — a gateway outage degrades charging but the service
// itself is still able to serve.
type Handler struct {
	DB           Probe
	Redis        Probe
	DBTimeout    time.Duration
	RedisTimeout time.Duration
}

type readiness struct {
	Status string `json:"status"`
	DB     string `json:"db"`
	Redis  string `json:"redis"`
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on dependency probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.DB == nil || h.Redis == nil {
		http.Error(w, "dependencies unavailable", http.StatusServiceUnavailable)
		return
	}
	ctx := r.Context()

	status := readiness{Status: "ok", DB: "ok", Redis: "ok"}
	if err := h.DB(ctx, h.dbTimeout()); err != nil {
		status.DB = err.Error()
	}
	if err := h.Redis(ctx, h.redisTimeout()); err != nil {
		status.Redis = err.Error()
	}

	w.Header().Set("Content-Type", "application/json")
	if status.DB != "ok" || status.Redis != "ok" {
		status.Status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func (h Handler) dbTimeout() time.Duration {
	if h.DBTimeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.DBTimeout
}

func (h Handler) redisTimeout() time.Duration {
	if h.RedisTimeout <= 0 {
		return 300 * time.Millisecond
	}
	return h.RedisTimeout
}
