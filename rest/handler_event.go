package rest

import (
	"encoding/json"
	"net/http"

	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"go.uber.org/zap"
)

func (s *Server) HandleReply(w http.ResponseWriter, r *http.Request) {
	var ev model.ReplyEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed reply event")
		return
	}
	defer r.Body.Close()
	ec, err := s.executionService.Reply(r.Context(), ev)
	if err != nil {
		logger.Info("reply not delivered", zap.String("conversationId", ev.ConversationId), zap.Error(err))
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, ec)
}
