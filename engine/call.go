package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mohitkumar/chatflow/analytics"
	"github.com/mohitkumar/chatflow/flow"
	"github.com/mohitkumar/chatflow/gateway"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	"github.com/mohitkumar/chatflow/util"
	"go.uber.org/zap"
)

const (
	VAR_AI_RESPONSE      = "ai_response"
	VAR_WEBHOOK_STATUS   = "webhook_status"
	VAR_WEBHOOK_RESPONSE = "webhook_response"
	VAR_API_STATUS       = "api_status"
	VAR_API_RESPONSE     = "api_response"
)

// CallResult is what a gateway reports back for a pending call.
type CallResult struct {
	Text     string
	Response gateway.Response
	Err      error
}

// issueCall performs the pending call of ec on the current goroutine and
// applies the outcome. A lost save means the context moved on while the call
// was out, and the result is dropped.
func (in *Interpreter) issueCall(ctx context.Context, ec *model.ExecutionContext) bool {
	fl, err := in.flows.GetFlow(ctx, ec.FlowId, ec.FlowVersion)
	if err != nil {
		in.failRuntime(ctx, ec, fmt.Sprintf("flow version %d unavailable: %v", ec.FlowVersion, err))
		return false
	}
	node, ok := fl.Node(ec.PendingCall.NodeId)
	if !ok {
		in.failRuntime(ctx, ec, "call node not found in flow")
		return false
	}
	callId := ec.PendingCall.Id
	result, err := in.call(ctx, ec, node)
	if err != nil {
		in.failRuntime(ctx, ec, err.Error())
		return false
	}
	in.applyResult(fl, ec, node, result)
	if err := in.save(ctx, ec); err != nil {
		logger.Debug("call completion dropped", zap.String("key", ec.Key().String()), zap.String("callId", callId), zap.Error(err))
		return false
	}
	return true
}

func (in *Interpreter) call(ctx context.Context, ec *model.ExecutionContext, node model.Node) (CallResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, in.conf.CallTimeout)
	defer cancel()
	cfg := node.Config
	var result CallResult
	switch {
	case node.Type == model.NODE_AI:
		result.Text, result.Err = in.gateways.AI.Complete(callCtx, cfg.AIModel, util.Render(cfg.Prompt, ec.Variables))
	case node.Type == model.NODE_WEBHOOK:
		result.Response, result.Err = in.gateways.Webhook.Call(callCtx, gateway.WebhookRequest{
			Method: cfg.Method,
			URL:    util.Render(cfg.URL, ec.Variables),
			Body:   util.Render(cfg.Body, ec.Variables),
		})
	case node.Type == model.NODE_ACTION && cfg.ActionType == model.ACTION_CALL_API:
		result.Response, result.Err = in.gateways.Actions.Perform(callCtx, gateway.ActionRequest{
			Type:           cfg.ActionType,
			Value:          cfg.ActionValue,
			FlowId:         ec.FlowId,
			ConversationId: ec.ConversationId,
			Variables:      ec.Variables,
		})
	default:
		return result, fmt.Errorf("node type %q does not make calls", node.Type)
	}
	return result, nil
}

// CompleteCall applies a gateway result to the context waiting on callId.
// Results for calls that are no longer pending return ErrStaleCallback and
// change nothing.
func (in *Interpreter) CompleteCall(ctx context.Context, key model.ContextKey, callId string, result CallResult) (*model.ExecutionContext, error) {
	ec, err := in.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if !in.isPendingCall(ec, callId) {
		logger.Debug("discarding stale callback", zap.String("key", key.String()), zap.String("callId", callId), zap.String("state", string(ec.State)))
		return ec, ErrStaleCallback
	}
	fl, err := in.flows.GetFlow(ctx, ec.FlowId, ec.FlowVersion)
	if err != nil {
		return nil, err
	}
	node, ok := fl.Node(ec.PendingCall.NodeId)
	if !ok {
		return nil, in.failRuntime(ctx, ec, "call node not found in flow")
	}
	in.applyResult(fl, ec, node, result)
	if err := in.save(ctx, ec); err != nil {
		return nil, err
	}
	in.afterTransition(ec)
	return ec, nil
}

// applyResult binds a successful result and advances, or books the failure.
func (in *Interpreter) applyResult(fl *flow.Flow, ec *model.ExecutionContext, node model.Node, result CallResult) {
	if result.Err != nil {
		in.callFailed(ec, node, result.Err)
		return
	}
	bindResult(ec, node, result)
	ec.PendingCall = nil
	in.advance(fl, ec, node.Id)
}

// callFailed schedules a retry with exponential backoff while attempts and
// the error allow it, and fails the context otherwise.
func (in *Interpreter) callFailed(ec *model.ExecutionContext, node model.Node, callErr error) {
	pending := ec.PendingCall
	pending.LastError = callErr.Error()
	if !gateway.IsRetryable(callErr) || pending.Attempt >= in.conf.MaxAttempts {
		logger.Error("gateway call failed", zap.String("key", ec.Key().String()), zap.String("nodeId", node.Id),
			zap.Int("attempt", pending.Attempt), zap.Error(callErr))
		in.markFailed(ec, fmt.Sprintf("%s call at node %s failed after %d attempt(s): %v", node.Type, node.Id, pending.Attempt, callErr))
		return
	}
	retryAt := in.now().Add(in.backoff(pending.Attempt))
	pending.RetryAt = &retryAt
	logger.Info("gateway call will be retried", zap.String("key", ec.Key().String()), zap.String("nodeId", node.Id),
		zap.Int("attempt", pending.Attempt), zap.Time("retryAt", retryAt), zap.Error(callErr))
	analytics.RecordCallRetry(ec.FlowId, ec.ConversationId, node.Id, pending.Attempt, callErr.Error())
}

// backoff returns the wait after the given failed attempt: base, 2*base, ...
func (in *Interpreter) backoff(attempt int) time.Duration {
	return in.conf.RetryBase * time.Duration(1<<uint(attempt-1))
}

// RetryCall re-issues a pending call whose backoff elapsed. The retry gets a
// fresh call id so late results of the previous attempt are stale.
func (in *Interpreter) RetryCall(ctx context.Context, key model.ContextKey) (*model.ExecutionContext, error) {
	ec, err := in.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if !persistence.IsRetryDue(ec, in.now()) {
		return ec, nil
	}
	ec.PendingCall.Id = uuid.NewString()
	ec.PendingCall.Attempt++
	ec.PendingCall.RetryAt = nil
	if err := in.save(ctx, ec); err != nil {
		return nil, err
	}
	in.afterTransition(ec)
	return ec, nil
}

func (in *Interpreter) isPendingCall(ec *model.ExecutionContext, callId string) bool {
	return ec.State == model.SUSPENDED_CALL && ec.PendingCall != nil && ec.PendingCall.Id == callId
}

func bindResult(ec *model.ExecutionContext, node model.Node, result CallResult) {
	switch node.Type {
	case model.NODE_AI:
		name := node.Config.Variable
		if name == "" {
			name = VAR_AI_RESPONSE
		}
		setVariable(ec, name, result.Text)
	case model.NODE_WEBHOOK:
		setVariable(ec, VAR_WEBHOOK_STATUS, float64(result.Response.Status))
		setVariable(ec, VAR_WEBHOOK_RESPONSE, result.Response.Body)
	case model.NODE_ACTION:
		setVariable(ec, VAR_API_STATUS, float64(result.Response.Status))
		setVariable(ec, VAR_API_RESPONSE, result.Response.Body)
	}
}
