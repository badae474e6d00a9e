package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/greyledger/offline-sync/internal/session"
	"github.com/redis/go-redis/v9"
)

// HealthHandler exposes liveness and readiness endpoints.
type HealthHandler struct {
	session *session.Session
	redis   redis.Cmdable
}

func NewHealthHandler(s *session.Session, redis redis.Cmdable) *HealthHandler {
	return &HealthHandler{session: s, redis: redis}
}

// Live always reports OK – if the process is up, it's live.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready checks that the session is unlocked and, when the redis backend
// is configured, that redis answers.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 1*time.Second)
	defer cancel()

	if !h.session.Initialized() {
		RespondError(w, r, http.StatusServiceUnavailable, "session/not-initialized", "session not initialized")
		return
	}

	if h.redis != nil {
		if err := h.redis.Ping(ctx).Err(); err != nil {
			RespondError(w, r, http.StatusServiceUnavailable, "store/redis-unavailable", "redis unavailable")
			return
		}
	}

	RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
