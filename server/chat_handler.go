package server

import (
	"net/http"

	"VibeMelody/logger"
	"VibeMelody/model"
	"VibeMelody/repository"

	"github.com/gorilla/mux"
)

const historyLimit = 200

// ChatHandler 聊天 HTTP 处理器
type ChatHandler struct {
	users    repository.UserRepository
	messages repository.MessageRepository
}

// NewChatHandler 创建聊天处理器
func NewChatHandler(users repository.UserRepository, messages repository.MessageRepository) *ChatHandler {
	return &ChatHandler{users: users, messages: messages}
}

// GetUsersHandler lists every other known user.
func (h *ChatHandler) GetUsersHandler(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListExcept(r.Context(), userFrom(r))
	if err != nil {
		logger.Error("list users", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// GetMessagesHandler returns the conversation with {peer}, oldest first.
func (h *ChatHandler) GetMessagesHandler(w http.ResponseWriter, r *http.Request) {
	peer := mux.Vars(r)["peer"]
	msgs, err := h.messages.Conversation(r.Context(), userFrom(r), peer, historyLimit)
	if err != nil {
		logger.Error("load conversation", logger.String("peer", peer), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}
