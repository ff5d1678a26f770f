package service

import (
	"context"
	"errors"

	api "github.com/mohitkumar/chatflow/api/v1"
	"github.com/mohitkumar/chatflow/engine"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	"go.uber.org/zap"
)

// ExecutionService is the request-facing side of the interpreter.
type ExecutionService struct {
	interpreter *engine.Interpreter
}

func NewExecutionService(interpreter *engine.Interpreter) *ExecutionService {
	return &ExecutionService{interpreter: interpreter}
}

func (s *ExecutionService) StartFlow(ctx context.Context, req model.StartRequest) (*model.ExecutionContext, error) {
	if req.FlowId == "" {
		return nil, api.InvalidRequestError{Field: "flowId", Reason: "is required"}
	}
	if req.ConversationId == "" {
		return nil, api.InvalidRequestError{Field: "conversationId", Reason: "is required"}
	}
	logger.Info("starting flow", zap.String("flowId", req.FlowId), zap.String("conversationId", req.ConversationId))
	return s.interpreter.Start(ctx, req.FlowId, req.ConversationId, req.Variables)
}

func (s *ExecutionService) Reply(ctx context.Context, ev model.ReplyEvent) (*model.ExecutionContext, error) {
	if ev.ConversationId == "" {
		return nil, api.InvalidRequestError{Field: "conversationId", Reason: "is required"}
	}
	return s.interpreter.OnReply(ctx, ev.ConversationId, ev.Text)
}

func (s *ExecutionService) Cancel(ctx context.Context, flowId string, conversationId string, req model.CancelRequest) (*model.ExecutionContext, error) {
	return s.interpreter.Cancel(ctx, model.ContextKey{FlowId: flowId, ConversationId: conversationId}, req.Reason)
}

func (s *ExecutionService) GetExecution(ctx context.Context, flowId string, conversationId string) (*model.ExecutionContext, error) {
	return s.interpreter.Get(ctx, model.ContextKey{FlowId: flowId, ConversationId: conversationId})
}

// History returns the current context, if any, and the archived ones.
func (s *ExecutionService) History(ctx context.Context, flowId string, conversationId string) (*model.ExecutionContext, []*model.ExecutionContext, error) {
	key := model.ContextKey{FlowId: flowId, ConversationId: conversationId}
	hist, err := s.interpreter.History(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	current, err := s.interpreter.Get(ctx, key)
	if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return nil, nil, err
	}
	return current, hist, nil
}
