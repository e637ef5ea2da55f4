package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/corpchat/internal/auth"
	"github.com/corpchat/internal/logger"
	"github.com/corpchat/internal/repository"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Errorf("writeJSON encode: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeRepoError переводит ошибки нижних слоёв в HTTP-статусы; незнакомые
// ошибки логируются и отдаются как 500 без деталей.
func writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, repository.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, repository.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already exists")
	case errors.Is(err, repository.ErrOversizeAttachment):
		writeError(w, http.StatusRequestEntityTooLarge, "attachment too large")
	case errors.Is(err, repository.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid status transition")
	case errors.Is(err, repository.ErrConversationMembers):
		writeError(w, http.StatusBadRequest, "conversation requires two distinct members")
	case errors.Is(err, repository.ErrPollClosed):
		writeError(w, http.StatusConflict, "poll closed")
	case errors.Is(err, repository.ErrUnknownOption):
		writeError(w, http.StatusBadRequest, "unknown poll option")
	case errors.Is(err, repository.ErrTooFewOptions):
		writeError(w, http.StatusBadRequest, "poll requires at least two options")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrEmailTaken):
		writeError(w, http.StatusConflict, "email already registered")
	case errors.Is(err, auth.ErrBadEmail), errors.Is(err, auth.ErrWrongDomain):
		writeError(w, http.StatusBadRequest, "invalid email")
	case errors.Is(err, auth.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, "password too short")
	case errors.Is(err, auth.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "too many attempts")
	default:
		logger.Errorf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}
