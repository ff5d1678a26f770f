package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mohitkumar/chatflow/action"
	"github.com/mohitkumar/chatflow/analytics"
	"github.com/mohitkumar/chatflow/flow"
	"github.com/mohitkumar/chatflow/gateway"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	"github.com/mohitkumar/chatflow/util"
	"go.uber.org/zap"
)

// run drives a context on the current worker until it waits on something
// outside the engine: input, a timer, a retry backoff or the end of the flow.
// Pending calls are issued inline so a worker never waits on its own pool.
// Progress is saved after every transition, so a concurrent cancel stops the
// run at its next save.
func (in *Interpreter) run(ctx context.Context, key model.ContextKey) {
	ec, err := in.store.Load(ctx, key)
	if err != nil {
		logger.Error("error loading context for run", zap.String("key", key.String()), zap.Error(err))
		return
	}
	for persistence.IsInFlight(ec) {
		var ok bool
		if ec.State == model.RUNNING {
			ok = in.runSteps(ctx, ec)
		} else {
			ok = in.issueCall(ctx, ec)
		}
		if !ok {
			return
		}
	}
	in.afterTransition(ec)
}

// runSteps executes nodes until ec leaves RUNNING. It returns false when the
// run stopped early: a lost save, an unavailable flow or the step limit.
func (in *Interpreter) runSteps(ctx context.Context, ec *model.ExecutionContext) bool {
	fl, err := in.flows.GetFlow(ctx, ec.FlowId, ec.FlowVersion)
	if err != nil {
		logger.Error("error loading flow for run", zap.String("key", ec.Key().String()), zap.Int("version", ec.FlowVersion), zap.Error(err))
		in.failRuntime(ctx, ec, fmt.Sprintf("flow version %d unavailable: %v", ec.FlowVersion, err))
		return false
	}
	for steps := 0; ec.State == model.RUNNING; steps++ {
		if steps >= in.conf.MaxSteps {
			in.failRuntime(ctx, ec, fmt.Sprintf("exceeded %d steps without suspending", in.conf.MaxSteps))
			return false
		}
		in.step(ctx, fl, ec)
		if err := in.save(ctx, ec); err != nil {
			return false
		}
	}
	return true
}

// step applies the node at ec.CurrentNodeId.
func (in *Interpreter) step(ctx context.Context, fl *flow.Flow, ec *model.ExecutionContext) {
	node, ok := fl.Node(ec.CurrentNodeId)
	if !ok {
		in.markFailed(ec, RuntimeError{FlowId: ec.FlowId, NodeId: ec.CurrentNodeId, Reason: "node not found"}.Error())
		return
	}
	analytics.RecordNodeExecuted(ec.FlowId, ec.ConversationId, node.Id, string(node.Type))
	cfg := node.Config
	switch node.Type {
	case model.NODE_MESSAGE, model.NODE_BUTTON, model.NODE_LIST, model.NODE_AUDIO, model.NODE_IMAGE, model.NODE_VIDEO:
		if err := in.send(ctx, ec, node); err != nil {
			in.markFailed(ec, fmt.Sprintf("message send failed at node %s: %v", node.Id, err))
			return
		}
		in.advance(fl, ec, node.Id)
	case model.NODE_INPUT:
		if cfg.Message != "" {
			if err := in.send(ctx, ec, node); err != nil {
				in.markFailed(ec, fmt.Sprintf("message send failed at node %s: %v", node.Id, err))
				return
			}
		}
		ec.State = model.SUSPENDED_INPUT
	case model.NODE_DELAY:
		resumeAt := in.now().Add(time.Duration(cfg.Delay) * time.Second)
		ec.ResumeAt = &resumeAt
		ec.State = model.SUSPENDED_TIMER
	case model.NODE_CONDITION:
		handle := action.Handle(action.Evaluate(cfg, ec.Variables))
		next, ok := fl.Branch(node.Id, handle)
		if !ok {
			ec.State = model.COMPLETED
			return
		}
		ec.CurrentNodeId = next
	case model.NODE_AI, model.NODE_WEBHOOK:
		in.suspendForCall(ec, node.Id)
	case model.NODE_ACTION:
		in.performAction(ctx, fl, ec, node)
	case model.NODE_END:
		ec.State = model.COMPLETED
	default:
		in.markFailed(ec, RuntimeError{FlowId: ec.FlowId, NodeId: node.Id, Reason: fmt.Sprintf("unknown node type %q", node.Type)}.Error())
	}
}

// advance moves past nodeId; a node without successor completes the run.
func (in *Interpreter) advance(fl *flow.Flow, ec *model.ExecutionContext, nodeId string) {
	next, ok := fl.Next(nodeId)
	if !ok {
		ec.CurrentNodeId = nodeId
		ec.State = model.COMPLETED
		return
	}
	ec.CurrentNodeId = next
	ec.State = model.RUNNING
}

func (in *Interpreter) suspendForCall(ec *model.ExecutionContext, nodeId string) {
	ec.State = model.SUSPENDED_CALL
	ec.PendingCall = &model.PendingCall{
		Id:      uuid.NewString(),
		NodeId:  nodeId,
		Attempt: 1,
	}
}

func (in *Interpreter) performAction(ctx context.Context, fl *flow.Flow, ec *model.ExecutionContext, node model.Node) {
	cfg := node.Config
	switch cfg.ActionType {
	case model.ACTION_SAVE_VARIABLE:
		name, value, err := action.Assign(cfg.ActionValue, ec.Variables)
		if err != nil {
			in.markFailed(ec, fmt.Sprintf("save_variable failed at node %s: %v", node.Id, err))
			return
		}
		setVariable(ec, name, value)
	case model.ACTION_CALL_API:
		in.suspendForCall(ec, node.Id)
		return
	default:
		callCtx, cancel := context.WithTimeout(ctx, in.conf.CallTimeout)
		defer cancel()
		_, err := in.gateways.Actions.Perform(callCtx, gateway.ActionRequest{
			Type:           cfg.ActionType,
			Value:          cfg.ActionValue,
			FlowId:         ec.FlowId,
			ConversationId: ec.ConversationId,
			Variables:      ec.Variables,
		})
		if err != nil {
			logger.Error("action failed", zap.String("key", ec.Key().String()), zap.String("nodeId", node.Id), zap.String("actionType", string(cfg.ActionType)), zap.Error(err))
			in.markFailed(ec, fmt.Sprintf("%s failed at node %s: %v", cfg.ActionType, node.Id, err))
			return
		}
	}
	in.advance(fl, ec, node.Id)
}

func (in *Interpreter) send(ctx context.Context, ec *model.ExecutionContext, node model.Node) error {
	return in.gateways.Sender.Send(ctx, ec.ConversationId, Outbound(node, ec.Variables))
}

// Outbound renders the payload a node sends, substituting {{name}} tokens.
func Outbound(node model.Node, vars map[string]any) model.OutboundMessage {
	cfg := node.Config
	msg := model.OutboundMessage{
		NodeId:  node.Id,
		Type:    node.Type,
		Text:    util.Render(cfg.Message, vars),
		Caption: util.Render(cfg.Caption, vars),
		Title:   util.Render(cfg.Title, vars),
		URL:     util.Render(cfg.URL, vars),
	}
	var options []string
	switch node.Type {
	case model.NODE_BUTTON:
		options = cfg.Buttons
	case model.NODE_LIST:
		options = cfg.ListItems
	}
	for _, opt := range options {
		msg.Options = append(msg.Options, util.Render(opt, vars))
	}
	return msg
}

func setVariable(ec *model.ExecutionContext, name string, value any) {
	if ec.Variables == nil {
		ec.Variables = make(map[string]any)
	}
	ec.Variables[name] = value
}
