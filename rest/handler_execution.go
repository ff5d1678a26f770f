package rest

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	api "github.com/mohitkumar/chatflow/api/v1"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"go.uber.org/zap"
)

func (s *Server) HandleStartFlow(w http.ResponseWriter, r *http.Request) {
	var req model.StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed start request")
		return
	}
	defer r.Body.Close()
	ec, err := s.executionService.StartFlow(r.Context(), req)
	if err != nil {
		logger.Error("error starting flow", zap.String("flowId", req.FlowId), zap.String("conversationId", req.ConversationId), zap.Error(err))
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, ec)
}

func (s *Server) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ec, err := s.executionService.GetExecution(r.Context(), vars["flowId"], vars["conversationId"])
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, ec)
}

func (s *Server) HandleCancelExecution(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var req model.CancelRequest
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		respondWithError(w, http.StatusBadRequest, "malformed cancel request")
		return
	}
	ec, err := s.executionService.Cancel(r.Context(), vars["flowId"], vars["conversationId"], req)
	if err != nil {
		logger.Error("error cancelling execution", zap.String("flowId", vars["flowId"]), zap.String("conversationId", vars["conversationId"]), zap.Error(err))
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, ec)
}

func (s *Server) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	current, hist, err := s.executionService.History(r.Context(), vars["flowId"], vars["conversationId"])
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	if hist == nil {
		hist = []*model.ExecutionContext{}
	}
	respondWithJSON(w, http.StatusOK, api.HistoryResponse{Current: current, History: hist})
}
