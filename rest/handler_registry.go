package rest

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mohitkumar/chatflow/flow"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/registry"
)

func (s *Server) HandleListNodeTypes(w http.ResponseWriter, r *http.Request) {
	schemas := make([]registry.Schema, 0)
	for _, t := range registry.Types() {
		schema, _ := registry.SchemaFor(t)
		schemas = append(schemas, schema)
	}
	respondWithJSON(w, http.StatusOK, schemas)
}

func (s *Server) HandleGetSchema(w http.ResponseWriter, r *http.Request) {
	schema, err := registry.SchemaFor(model.NodeType(mux.Vars(r)["type"]))
	if err != nil {
		respondWithError(w, http.StatusNotFound, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, schema)
}

func (s *Server) HandleGetDefaultConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := registry.DefaultConfig(model.NodeType(mux.Vars(r)["type"]))
	if err != nil {
		respondWithError(w, http.StatusNotFound, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, cfg)
}

func nonNil(issues []flow.Issue) []flow.Issue {
	if issues == nil {
		return []flow.Issue{}
	}
	return issues
}
