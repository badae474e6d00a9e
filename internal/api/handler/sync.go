package handler

import (
	"net/http"

	"github.com/greyledger/offline-sync/internal/session"
)

type SyncHandler struct {
	session *session.Session
}

func NewSyncHandler(s *session.Session) *SyncHandler {
	return &SyncHandler{session: s}
}

// Trigger wakes the sync worker. Returns immediately; the drain runs in
// the background and its outcome is visible via Status.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Sync(); err != nil {
		if status, pType, msg, ok := mapAgentError(err); ok {
			RespondError(w, r, status, pType, msg)
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "sync/trigger-failed", "Failed to trigger sync")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Status reports the worker state, the auth-required flag, the last error
// and the queue depths.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	worker := h.session.Worker()
	if worker == nil {
		RespondError(w, r, http.StatusConflict, "session/not-initialized", "session is not initialized")
		return
	}
	RespondJSON(w, http.StatusOK, worker.Status())
}
