package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"VibeMelody/core/relay"
	"VibeMelody/logger"
	"VibeMelody/model"
	"VibeMelody/repository"
)

const notificationLimit = 100

// NotificationHandler 通知 HTTP 处理器
type NotificationHandler struct {
	repo  repository.NotificationRepository
	relay *relay.Relay
}

// NewNotificationHandler 创建通知处理器
func NewNotificationHandler(repo repository.NotificationRepository, r *relay.Relay) *NotificationHandler {
	return &NotificationHandler{repo: repo, relay: r}
}

// ListHandler returns the caller's notifications, newest first.
func (h *NotificationHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	items, err := h.repo.ListByUser(r.Context(), userFrom(r), notificationLimit)
	if err != nil {
		logger.Error("list notifications", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if items == nil {
		items = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, items)
}

// PushHandler stores a notification and pushes it over the realtime channel.
func (h *NotificationHandler) PushHandler(w http.ResponseWriter, r *http.Request) {
	var req model.CreateNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	n, err := h.relay.PushNotification(r.Context(), req)
	if err != nil {
		if errors.Is(err, relay.ErrInvalidNotification) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("push notification", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to push notification")
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// MarkReadHandler 标记全部已读
func (h *NotificationHandler) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.MarkAllRead(r.Context(), userFrom(r)); err != nil {
		logger.Error("mark notifications read", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to mark read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
