package handler

import (
	"encoding/json"
	"net/http"

	"github.com/corpchat/internal/middleware"
	"github.com/corpchat/internal/push"
)

type PushHandler struct {
	notifier *push.Notifier
	vapidPub string
}

func NewPushHandler(notifier *push.Notifier, vapidPub string) *PushHandler {
	return &PushHandler{notifier: notifier, vapidPub: vapidPub}
}

// PublicKey отдаёт VAPID-ключ для подписки браузера.
func (h *PushHandler) PublicKey(w http.ResponseWriter, r *http.Request) {
	if !h.notifier.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "push disabled")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"publicKey": h.vapidPub})
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var sub push.Subscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil || sub.Endpoint == "" {
		writeError(w, http.StatusBadRequest, "invalid subscription")
		return
	}
	if err := h.notifier.Subscribe(r.Context(), middleware.GetUserID(r.Context()), &sub); err != nil {
		writeRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	if err := h.notifier.Unsubscribe(r.Context(), middleware.GetUserID(r.Context())); err != nil {
		writeRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
