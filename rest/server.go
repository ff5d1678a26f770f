package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	api "github.com/mohitkumar/chatflow/api/v1"
	"github.com/mohitkumar/chatflow/engine"
	"github.com/mohitkumar/chatflow/flow"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/metadata"
	"github.com/mohitkumar/chatflow/persistence"
	"github.com/mohitkumar/chatflow/service"
	"go.uber.org/zap"
)

type Server struct {
	http.Server
	Port             int
	metadataService  metadata.MetadataService
	executionService *service.ExecutionService
}

func NewServer(httpPort int, metadataService metadata.MetadataService, executionService *service.ExecutionService) (*Server, error) {
	s := &Server{
		Server: http.Server{
			Addr:        fmt.Sprintf(":%d", httpPort),
			IdleTimeout: 2 * time.Second,
		},
		metadataService:  metadataService,
		executionService: executionService,
		Port:             httpPort,
	}

	router := mux.NewRouter()
	router.HandleFunc("/flows", s.HandleImportFlow).Methods(http.MethodPost)
	router.HandleFunc("/flows", s.HandleListFlows).Methods(http.MethodGet)
	router.HandleFunc("/flows/{id}", s.HandleExportFlow).Methods(http.MethodGet)
	router.HandleFunc("/flows/{id}", s.HandleSaveFlow).Methods(http.MethodPut)
	router.HandleFunc("/flows/{id}", s.HandleDeleteFlow).Methods(http.MethodDelete)
	router.HandleFunc("/flows/{id}/validate", s.HandleValidateFlow).Methods(http.MethodPost)
	router.HandleFunc("/flows/{id}/publish", s.HandlePublishFlow).Methods(http.MethodPost)

	router.HandleFunc("/nodes", s.HandleListNodeTypes).Methods(http.MethodGet)
	router.HandleFunc("/nodes/{type}/schema", s.HandleGetSchema).Methods(http.MethodGet)
	router.HandleFunc("/nodes/{type}/default", s.HandleGetDefaultConfig).Methods(http.MethodGet)

	router.HandleFunc("/executions", s.HandleStartFlow).Methods(http.MethodPost)
	router.HandleFunc("/executions/{flowId}/{conversationId}", s.HandleGetExecution).Methods(http.MethodGet)
	router.HandleFunc("/executions/{flowId}/{conversationId}/cancel", s.HandleCancelExecution).Methods(http.MethodPost)
	router.HandleFunc("/executions/{flowId}/{conversationId}/history", s.HandleGetHistory).Methods(http.MethodGet)

	router.HandleFunc("/events/reply", s.HandleReply).Methods(http.MethodPost)

	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server on", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := s.Shutdown(ctx)
	if err != nil {
		logger.Error("error shutting down http server", zap.Error(err))
	}
	return err
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("http request", zap.String("method", r.Method), zap.String("uri", r.RequestURI))
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithRawJSON(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}

func respondOKWithoutBody(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, api.ErrorResponse{Error: message})
}

// respondWithFailure maps a layer error to its HTTP status. Validation
// failures carry their issue list so the editor can point at nodes.
func respondWithFailure(w http.ResponseWriter, err error) {
	var (
		parseErr   flow.ParseError
		graphErr   flow.GraphValidationError
		configErr  flow.ConfigValidationError
		invalidErr api.InvalidRequestError
	)
	switch {
	case errors.As(err, &graphErr):
		respondWithJSON(w, http.StatusUnprocessableEntity, api.ErrorResponse{Error: err.Error(), Issues: graphErr.Issues})
	case errors.As(err, &configErr):
		respondWithJSON(w, http.StatusUnprocessableEntity, api.ErrorResponse{Error: err.Error(), Issues: configErr.Issues})
	case errors.As(err, &parseErr), errors.As(err, &invalidErr):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, persistence.ErrNotFound), errors.Is(err, engine.ErrNoWaitingContext):
		respondWithError(w, http.StatusNotFound, err.Error())
	case persistence.IsConflict(err):
		respondWithError(w, http.StatusConflict, err.Error())
	default:
		logger.Error("request failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, err.Error())
	}
}
