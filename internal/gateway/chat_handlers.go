package gateway

import (
	"net/http"
	"strconv"

	"github.com/haasonsaas/conductor/internal/chat"
	"github.com/haasonsaas/conductor/internal/streams"
)

// ConversationHeader names the conversation of a streamed turn.
const ConversationHeader = "X-Conversation-Id"

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	user := s.user(w, r, "chat")
	if user == nil {
		return
	}
	req, err := chat.DecodeTurnRequest(http.MaxBytesReader(w, r.Body, chat.MaxRequestBytes), s.chat.Models())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	turn, err := s.chat.StartTurn(r.Context(), user, req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set(ConversationHeader, turn.ConversationID)
	if err := streams.WriteSSE(r.Context(), w, turn.Events); err != nil {
		s.logger.DebugContext(r.Context(), "turn stream ended early",
			"conversation_id", turn.ConversationID,
			"stream_id", turn.StreamID,
			"error", err)
	}
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	user := s.user(w, r, "stream")
	if user == nil {
		return
	}
	events, err := s.chat.Resume(r.Context(), user, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if events == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err := streams.WriteSSE(r.Context(), w, events); err != nil {
		s.logger.DebugContext(r.Context(), "resumed stream ended early", "error", err)
	}
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	user := s.user(w, r, "chat")
	if user == nil {
		return
	}
	conv, err := s.chat.DeleteConversation(r.Context(), user, r.URL.Query().Get("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	user := s.user(w, r, "history")
	if user == nil {
		return
	}
	messages, err := s.chat.History(r.Context(), user, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	user := s.user(w, r, "history")
	if user == nil {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	convs, err := s.chat.ListConversations(r.Context(), user, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convs)
}
