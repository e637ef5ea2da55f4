package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/corpchat/internal/middleware"
	"github.com/corpchat/internal/model"
	"github.com/corpchat/internal/push"
	"github.com/corpchat/internal/repository"
)

type ConversationHandler struct {
	convs    *repository.ConversationRepository
	users    *repository.UserRepository
	notifier *push.Notifier
}

func NewConversationHandler(convs *repository.ConversationRepository, users *repository.UserRepository, notifier *push.Notifier) *ConversationHandler {
	return &ConversationHandler{convs: convs, users: users, notifier: notifier}
}

type OpenConversationRequest struct {
	UserID string `json:"userId"`
}

// Open возвращает беседу с указанным пользователем, создавая её при первом
// обращении. Идемпотентно: id канонический.
func (h *ConversationHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req OpenConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	me := middleware.GetUser(r.Context())
	other, err := h.users.GetByID(r.Context(), req.UserID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	conv, err := h.convs.GetOrCreate(r.Context(), me, other)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	convs, err := h.convs.List(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conv, err := h.convs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	me := middleware.GetUserID(r.Context())
	if !memberOf(conv.Members, me) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

type SendMessageRequest struct {
	Text        string            `json:"text"`
	Type        model.MessageType `json:"type"`
	ImageBase64 string            `json:"imageBase64,omitempty"`
	FileBase64  string            `json:"fileBase64,omitempty"`
	FileName    string            `json:"fileName,omitempty"`
	MimeType    string            `json:"mimeType,omitempty"`
	FileSize    int64             `json:"fileSize,omitempty"`
}

func (req *SendMessageRequest) toMessage() *model.Message {
	t := req.Type
	if t == "" {
		t = model.MessageTypeText
	}
	return &model.Message{
		Text:        req.Text,
		Type:        t,
		ImageBase64: req.ImageBase64,
		FileBase64:  req.FileBase64,
		FileName:    req.FileName,
		MimeType:    req.MimeType,
		FileSize:    req.FileSize,
	}
}

func (h *ConversationHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	me := middleware.GetUser(r.Context())
	convID := chi.URLParam(r, "id")
	msg, err := h.convs.SendMessage(r.Context(), convID, me, req.toMessage())
	if err != nil {
		writeRepoError(w, err)
		return
	}
	// уведомляем собеседника в фоне, ответ не ждёт доставки
	if conv, err := h.convs.Get(r.Context(), convID); err == nil && conv.LastMessage != nil {
		other := conv.OtherMember(me.ID)
		body := conv.LastMessage.Text
		go h.notifier.Notify(context.Background(), other, &push.Notification{
			Title: me.Name,
			Body:  body,
			Data:  map[string]string{"conversationId": convID},
		})
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	convID := chi.URLParam(r, "id")
	conv, err := h.convs.Get(r.Context(), convID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	if !memberOf(conv.Members, middleware.GetUserID(r.Context())) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	msgs, err := h.convs.Messages(r.Context(), convID, queryInt(r, "limit", 100))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.convs.MarkAsRead(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context())); err != nil {
		writeRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type TypingRequest struct {
	Typing bool `json:"typing"`
}

func (h *ConversationHandler) Typing(w http.ResponseWriter, r *http.Request) {
	var req TypingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if err := h.convs.SetTyping(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()), req.Typing); err != nil {
		writeRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func memberOf(members []string, id string) bool {
	for _, m := range members {
		if m == id {
			return true
		}
	}
	return false
}
