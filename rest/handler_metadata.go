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

func (s *Server) HandleImportFlow(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	data, err := io.ReadAll(r.Body)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "error reading request body")
		return
	}
	draft, issues, err := s.metadataService.ImportDraft(r.Context(), data)
	if err != nil {
		logger.Info("flow import rejected", zap.Error(err))
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, api.DraftResponse{Flow: draft, Issues: nonNil(issues)})
}

func (s *Server) HandleListFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := s.metadataService.ListFlows(r.Context())
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	if flows == nil {
		flows = []model.FlowSummary{}
	}
	respondWithJSON(w, http.StatusOK, flows)
}

func (s *Server) HandleExportFlow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	data, err := s.metadataService.ExportDraft(r.Context(), id)
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	respondWithRawJSON(w, http.StatusOK, data)
}

func (s *Server) HandleSaveFlow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var g model.Graph
	if err := json.NewDecoder(r.Body).Decode(&g); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed flow: "+err.Error())
		return
	}
	defer r.Body.Close()
	g.Id = id
	draft, issues, err := s.metadataService.SaveDraft(r.Context(), &g)
	if err != nil {
		logger.Info("flow save rejected", zap.String("flowId", id), zap.Error(err))
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, api.DraftResponse{Flow: draft, Issues: nonNil(issues)})
}

func (s *Server) HandleDeleteFlow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.metadataService.DeleteFlow(r.Context(), id); err != nil {
		respondWithFailure(w, err)
		return
	}
	respondOKWithoutBody(w)
}

func (s *Server) HandleValidateFlow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	issues, err := s.metadataService.ValidateDraft(r.Context(), id)
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, api.IssuesResponse{Issues: nonNil(issues)})
}

func (s *Server) HandlePublishFlow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	published, err := s.metadataService.Publish(r.Context(), id)
	if err != nil {
		respondWithFailure(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, published)
}
