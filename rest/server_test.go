package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	api "github.com/mohitkumar/chatflow/api/v1"
	"github.com/mohitkumar/chatflow/engine"
	"github.com/mohitkumar/chatflow/gateway"
	"github.com/mohitkumar/chatflow/metadata"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence/memory"
	"github.com/mohitkumar/chatflow/registry"
	"github.com/mohitkumar/chatflow/service"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
}

func (s *recordingSender) Send(_ context.Context, _ string, msg model.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg.Text)
	return nil
}

const greetingFlow = `{
  "name": "greeting",
  "nodes": [
    {"id": "start", "type": "start", "position": {"x": 0, "y": 0}, "config": {}},
    {"id": "ask", "type": "input", "position": {"x": 0, "y": 100}, "config": {"message": "Your name?", "variable": "name"}},
    {"id": "hello", "type": "message", "position": {"x": 0, "y": 200}, "config": {"message": "Hello {{name}}"}},
    {"id": "end", "type": "end", "position": {"x": 0, "y": 300}, "config": {}}
  ],
  "edges": [
    {"id": "e1", "source": "start", "target": "ask"},
    {"id": "e2", "source": "ask", "target": "hello"},
    {"id": "e3", "source": "hello", "target": "end"}
  ]
}`

func newTestServer(t *testing.T) (*Server, *recordingSender) {
	t.Helper()
	sender := &recordingSender{}
	metadataService := metadata.NewMetadataService(memory.NewMetadataStorage())
	interpreter := engine.NewInterpreter(memory.NewContextStore(), metadataService,
		engine.Gateways{Sender: sender, Actions: gateway.NewActionRouter(nil, gateway.NewMemoryRecordWriter(), nil)},
		engine.InlineDispatcher{}, engine.DefaultConfig())
	s, err := NewServer(0, metadataService, service.NewExecutionService(interpreter))
	require.NoError(t, err)
	return s, sender
}

func do(t *testing.T, s *Server, method string, path string, body string, out any) int {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func importFlow(t *testing.T, s *Server, body string) *model.Graph {
	t.Helper()
	var res api.DraftResponse
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/flows", body, &res))
	require.NotEmpty(t, res.Flow.Id)
	return res.Flow
}

func TestFlowAuthoring(t *testing.T) {
	for scenario, fn := range map[string]func(t *testing.T, s *Server){
		"import export and list": func(t *testing.T, s *Server) {
			draft := importFlow(t, s, greetingFlow)
			require.Equal(t, 1, draft.Version)

			var exported model.Graph
			require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/flows/"+draft.Id, "", &exported))
			require.Equal(t, "greeting", exported.Name)
			require.Len(t, exported.Nodes, 4)

			var flows []model.FlowSummary
			require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/flows", "", &flows))
			require.Len(t, flows, 1)
			require.Equal(t, draft.Id, flows[0].Id)
		},
		"corrupt json is a bad request": func(t *testing.T, s *Server) {
			var res api.ErrorResponse
			require.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/flows", `{"name": "x", "nodes": [`, &res))
			require.NotEmpty(t, res.Error)
		},
		"stale save conflicts": func(t *testing.T, s *Server) {
			draft := importFlow(t, s, greetingFlow)
			draft.Name = "renamed"
			body, _ := json.Marshal(draft)
			var saved api.DraftResponse
			require.Equal(t, http.StatusOK, do(t, s, http.MethodPut, "/flows/"+draft.Id, string(body), &saved))
			require.Equal(t, 2, saved.Flow.Version)
			require.Equal(t, http.StatusConflict, do(t, s, http.MethodPut, "/flows/"+draft.Id, string(body), nil))
		},
		"publish rejects warnings with issues": func(t *testing.T, s *Server) {
			var g model.Graph
			require.NoError(t, json.Unmarshal([]byte(greetingFlow), &g))
			g.Nodes[2].Config.Message = ""
			body, _ := json.Marshal(g)
			draft := importFlow(t, s, string(body))

			var issues api.IssuesResponse
			require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/flows/"+draft.Id+"/validate", "", &issues))
			require.Len(t, issues.Issues, 1)
			require.Equal(t, "hello", issues.Issues[0].NodeId)

			var res api.ErrorResponse
			require.Equal(t, http.StatusUnprocessableEntity, do(t, s, http.MethodPost, "/flows/"+draft.Id+"/publish", "", &res))
			require.Len(t, res.Issues, 1)
			require.Equal(t, "hello", res.Issues[0].NodeId)
		},
		"publish and delete": func(t *testing.T, s *Server) {
			draft := importFlow(t, s, greetingFlow)
			var published model.Graph
			require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/flows/"+draft.Id+"/publish", "", &published))
			require.Equal(t, 1, published.Version)
			require.Equal(t, http.StatusOK, do(t, s, http.MethodDelete, "/flows/"+draft.Id, "", nil))
			require.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/flows/"+draft.Id, "", nil))
		},
		"node registry": func(t *testing.T, s *Server) {
			var schemas []registry.Schema
			require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/nodes", "", &schemas))
			require.Len(t, schemas, len(registry.Types()))

			var schema registry.Schema
			require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/nodes/condition/schema", "", &schema))
			require.True(t, schema.Branching)

			var cfg model.NodeConfig
			require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/nodes/delay/default", "", &cfg))
			require.Equal(t, 5, cfg.Delay)

			require.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/nodes/carousel/schema", "", nil))
		},
	} {
		t.Run(scenario, func(t *testing.T) {
			s, _ := newTestServer(t)
			fn(t, s)
		})
	}
}

func TestExecutionRoutes(t *testing.T) {
	s, sender := newTestServer(t)
	draft := importFlow(t, s, greetingFlow)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/flows/"+draft.Id+"/publish", "", nil))

	require.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/executions", `{"flowId": "`+draft.Id+`"}`, nil))
	require.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, "/executions", `{"flowId": "missing", "conversationId": "c1"}`, nil))

	var ec model.ExecutionContext
	start := `{"flowId": "` + draft.Id + `", "conversationId": "c1", "variables": {"source": "ad"}}`
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/executions", start, &ec))
	require.Equal(t, model.SUSPENDED_INPUT, ec.State)
	require.Equal(t, "ad", ec.Variables["source"])

	require.Equal(t, http.StatusNotFound, do(t, s, http.MethodPost, "/events/reply", `{"conversationId": "other", "text": "x"}`, nil))
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/events/reply", `{"conversationId": "c1", "text": "Ann"}`, &ec))
	require.Equal(t, model.COMPLETED, ec.State)
	require.Equal(t, []string{"Your name?", "Hello Ann"}, sender.sent)

	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/executions", start, &ec))
	require.Equal(t, model.SUSPENDED_INPUT, ec.State)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/executions/"+draft.Id+"/c1/cancel", `{"reason": "agent took over"}`, &ec))
	require.Equal(t, model.FAILED, ec.State)
	require.Contains(t, ec.Error, "agent took over")

	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/executions/"+draft.Id+"/c1", "", &ec))
	require.Equal(t, model.FAILED, ec.State)
	var hist api.HistoryResponse
	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/executions/"+draft.Id+"/c1/history", "", &hist))
	require.Equal(t, ec.Id, hist.Current.Id)
	require.Len(t, hist.History, 1)
	require.Equal(t, model.COMPLETED, hist.History[0].State)

	require.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/executions/"+draft.Id+"/nobody", "", nil))
}
