package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"courtside/database"
	"courtside/middleware"
	"courtside/models"
)

const (
	defaultPageLimit = 30
	maxPageLimit     = 100
)

type conversationList struct {
	Conversations []models.Conversation `json:"conversations"`
}

type createConversationRequest struct {
	OtherUserID int64 `json:"otherUserId"`
}

// GetConversations returns all conversations for the current user
func GetConversations(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	if user == nil {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	conversations, err := database.GetConversations(user.ID)
	if err != nil {
		http.Error(w, `{"error": "Failed to get conversations"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, conversationList{Conversations: conversations})
}

// CreateConversation returns the conversation with another user, creating it
// on first contact
func CreateConversation(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	if user == nil {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	var req createConversationRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.OtherUserID == user.ID {
		http.Error(w, `{"error": "Cannot start a conversation with yourself"}`, http.StatusBadRequest)
		return
	}
	if _, err := database.GetUserByID(req.OtherUserID); err != nil {
		http.Error(w, `{"error": "User not found"}`, http.StatusNotFound)
		return
	}

	id, err := database.GetOrCreateConversation(user.ID, req.OtherUserID)
	if err != nil {
		http.Error(w, `{"error": "Failed to create conversation"}`, http.StatusInternalServerError)
		return
	}
	conv, err := database.GetConversation(id, user.ID)
	if err != nil {
		http.Error(w, `{"error": "Failed to load conversation"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// GetMessages returns one page of a conversation's history
func GetMessages(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r)
	if user == nil {
		http.Error(w, `{"error": "Unauthorized"}`, http.StatusUnauthorized)
		return
	}

	conversationID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, `{"error": "Invalid conversation ID"}`, http.StatusBadRequest)
		return
	}

	if _, err := database.ConversationPeer(conversationID, user.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) || errors.Is(err, database.ErrNotParticipant) {
			http.Error(w, `{"error": "Conversation not found"}`, http.StatusNotFound)
			return
		}
		http.Error(w, `{"error": "Failed to get messages"}`, http.StatusInternalServerError)
		return
	}

	// Get pagination params
	limit := defaultPageLimit
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxPageLimit {
			limit = parsed
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	messages, hasMore, err := database.GetMessages(conversationID, limit, offset)
	if err != nil {
		http.Error(w, `{"error": "Failed to get messages"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, models.MessagePage{Messages: messages, HasMore: hasMore})
}
