package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mohitkumar/chatflow/analytics"
	"github.com/mohitkumar/chatflow/flow"
	"github.com/mohitkumar/chatflow/gateway"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	"go.uber.org/zap"
)

type Config struct {
	MaxAttempts int
	RetryBase   time.Duration
	MaxSteps    int
	CallTimeout time.Duration
	// StallTimeout is how long an in-flight context may go without a save
	// before the stall sweep takes it over. Defaults to twice CallTimeout.
	StallTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		RetryBase:   2 * time.Second,
		MaxSteps:    500,
		CallTimeout: 30 * time.Second,
	}
}

// FlowSource resolves published flows; version 0 means latest.
type FlowSource interface {
	GetFlow(ctx context.Context, id string, version int) (*flow.Flow, error)
}

type Gateways struct {
	Sender  gateway.MessageSender
	Webhook gateway.WebhookCaller
	AI      gateway.AICompleter
	Actions gateway.ActionPerformer
}

type Option func(*Interpreter)

func WithClock(now func() time.Time) Option {
	return func(in *Interpreter) {
		in.now = now
	}
}

// Interpreter drives execution contexts through their flow. Suspended
// contexts hold no goroutine; every resumption loads the context, applies
// one transition and saves it with compare-and-set.
type Interpreter struct {
	store      persistence.ContextStore
	flows      FlowSource
	gateways   Gateways
	dispatcher Dispatcher
	conf       Config
	now        func() time.Time
}

func NewInterpreter(store persistence.ContextStore, flows FlowSource, gateways Gateways, dispatcher Dispatcher, conf Config, opts ...Option) *Interpreter {
	def := DefaultConfig()
	if conf.MaxAttempts <= 0 {
		conf.MaxAttempts = def.MaxAttempts
	}
	if conf.RetryBase <= 0 {
		conf.RetryBase = def.RetryBase
	}
	if conf.MaxSteps <= 0 {
		conf.MaxSteps = def.MaxSteps
	}
	if conf.CallTimeout <= 0 {
		conf.CallTimeout = def.CallTimeout
	}
	if conf.StallTimeout <= 0 {
		conf.StallTimeout = 2 * conf.CallTimeout
	}
	in := &Interpreter{
		store:      store,
		flows:      flows,
		gateways:   gateways,
		dispatcher: dispatcher,
		conf:       conf,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Start creates a context for the conversation at the start node's successor
// and runs it. Starting while a context is active returns that context.
func (in *Interpreter) Start(ctx context.Context, flowId string, conversationId string, vars map[string]any) (*model.ExecutionContext, error) {
	fl, err := in.flows.GetFlow(ctx, flowId, 0)
	if err != nil {
		return nil, err
	}
	now := in.now()
	ec := &model.ExecutionContext{
		Id:             uuid.NewString(),
		FlowId:         flowId,
		FlowVersion:    fl.Version,
		ConversationId: conversationId,
		Variables:      make(map[string]any, len(vars)),
		State:          model.RUNNING,
		CreatedAt:      now,
	}
	for k, v := range vars {
		ec.Variables[k] = v
	}
	first, ok := fl.Next(fl.StartId)
	if ok {
		ec.CurrentNodeId = first
	} else {
		ec.CurrentNodeId = fl.StartId
		ec.State = model.COMPLETED
	}
	in.stamp(ec)
	stored, created, err := in.store.Create(ctx, ec)
	if err != nil {
		return nil, err
	}
	if !created {
		logger.Info("context already active, start ignored", zap.String("flowId", flowId), zap.String("conversationId", conversationId), zap.String("state", string(stored.State)))
		return stored, nil
	}
	logger.Info("context started", zap.String("flowId", flowId), zap.Int("version", fl.Version), zap.String("conversationId", conversationId), zap.String("id", ec.Id))
	analytics.RecordNodeExecuted(flowId, conversationId, fl.StartId, string(model.NODE_START))
	if ec.State == model.COMPLETED {
		analytics.RecordFlowCompleted(flowId, conversationId)
		return stored, nil
	}
	in.schedule(stored.Key())
	return in.latest(ctx, stored), nil
}

// Now is the interpreter's clock.
func (in *Interpreter) Now() time.Time {
	return in.now()
}

func (in *Interpreter) Get(ctx context.Context, key model.ContextKey) (*model.ExecutionContext, error) {
	return in.store.Load(ctx, key)
}

func (in *Interpreter) History(ctx context.Context, key model.ContextKey) ([]*model.ExecutionContext, error) {
	return in.store.History(ctx, key)
}

// OnReply delivers inbound text to the context waiting for input on the
// conversation. When several flows wait, the most recently suspended wins.
func (in *Interpreter) OnReply(ctx context.Context, conversationId string, text string) (*model.ExecutionContext, error) {
	contexts, err := in.store.ListByConversation(ctx, conversationId)
	if err != nil {
		return nil, err
	}
	var waiting *model.ExecutionContext
	for _, ec := range contexts {
		if ec.State != model.SUSPENDED_INPUT {
			continue
		}
		if waiting == nil || ec.UpdatedAt.After(waiting.UpdatedAt) {
			waiting = ec
		}
	}
	if waiting == nil {
		return nil, ErrNoWaitingContext
	}
	fl, err := in.flows.GetFlow(ctx, waiting.FlowId, waiting.FlowVersion)
	if err != nil {
		return nil, err
	}
	node, ok := fl.Node(waiting.CurrentNodeId)
	if !ok {
		return nil, in.failRuntime(ctx, waiting, "input node not found in flow")
	}
	if node.Config.Variable != "" {
		waiting.Variables[node.Config.Variable] = text
	}
	in.advance(fl, waiting, node.Id)
	if err := in.save(ctx, waiting); err != nil {
		return nil, err
	}
	in.afterTransition(waiting)
	return in.latest(ctx, waiting), nil
}

// ResumeTimer advances a timer-suspended context whose resume time passed.
func (in *Interpreter) ResumeTimer(ctx context.Context, key model.ContextKey) (*model.ExecutionContext, error) {
	ec, err := in.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if !persistence.IsDue(ec, in.now()) {
		return ec, nil
	}
	fl, err := in.flows.GetFlow(ctx, ec.FlowId, ec.FlowVersion)
	if err != nil {
		return nil, err
	}
	ec.ResumeAt = nil
	in.advance(fl, ec, ec.CurrentNodeId)
	if err := in.save(ctx, ec); err != nil {
		return nil, err
	}
	in.afterTransition(ec)
	return ec, nil
}

// Cancel forces an active context to Failed. In-flight calls are left to
// finish; their callbacks are discarded by the pending call guard.
func (in *Interpreter) Cancel(ctx context.Context, key model.ContextKey, reason string) (*model.ExecutionContext, error) {
	if reason == "" {
		reason = "cancelled by operator"
	}
	for attempt := 0; attempt < 5; attempt++ {
		ec, err := in.store.Load(ctx, key)
		if err != nil {
			return nil, err
		}
		if ec.State.IsTerminal() {
			return ec, nil
		}
		nodeId := ec.CurrentNodeId
		in.markFailed(ec, "cancelled: "+reason)
		in.stamp(ec)
		err = in.store.Save(ctx, ec)
		if err == nil {
			logger.Info("context cancelled", zap.String("key", key.String()), zap.String("reason", reason))
			analytics.RecordFlowFailed(ec.FlowId, ec.ConversationId, nodeId, ec.Error)
			return ec, nil
		}
		if !persistence.IsConflict(err) {
			return nil, err
		}
	}
	return nil, persistence.ConcurrencyConflictError{Key: key.String()}
}

// SweepTimers resumes every timer-suspended context that is due.
func (in *Interpreter) SweepTimers(ctx context.Context) (int, error) {
	due, err := in.store.ListDue(ctx, in.now())
	if err != nil {
		return 0, err
	}
	resumed := 0
	for _, ec := range due {
		if _, err := in.ResumeTimer(ctx, ec.Key()); err != nil {
			if !persistence.IsConflict(err) {
				logger.Error("error resuming timer", zap.String("key", ec.Key().String()), zap.Error(err))
			}
			continue
		}
		resumed++
	}
	return resumed, nil
}

// SweepRetries re-issues every pending call whose backoff has elapsed.
func (in *Interpreter) SweepRetries(ctx context.Context) (int, error) {
	due, err := in.store.ListRetryDue(ctx, in.now())
	if err != nil {
		return 0, err
	}
	retried := 0
	for _, ec := range due {
		if _, err := in.RetryCall(ctx, ec.Key()); err != nil {
			if !persistence.IsConflict(err) {
				logger.Error("error retrying call", zap.String("key", ec.Key().String()), zap.Error(err))
			}
			continue
		}
		retried++
	}
	return retried, nil
}

// stamp records the time of a transition and renews the lease of contexts
// the engine keeps working on.
func (in *Interpreter) stamp(ec *model.ExecutionContext) {
	now := in.now()
	ec.UpdatedAt = now
	if persistence.IsInFlight(ec) {
		lease := now.Add(in.conf.StallTimeout)
		ec.LeaseUntil = &lease
		return
	}
	ec.LeaseUntil = nil
}

// save persists ec with compare-and-set. Losing writers are logged and the
// conflict returned so callers drop their transition.
func (in *Interpreter) save(ctx context.Context, ec *model.ExecutionContext) error {
	in.stamp(ec)
	err := in.store.Save(ctx, ec)
	if err != nil {
		if persistence.IsConflict(err) {
			logger.Info("discarding stale transition", zap.String("key", ec.Key().String()), zap.String("state", string(ec.State)), zap.Error(err))
		} else {
			logger.Error("error saving context", zap.String("key", ec.Key().String()), zap.Error(err))
		}
	}
	return err
}

// afterTransition schedules the work implied by a freshly saved state. It is
// only called outside the workers; a worker continues in-flight work itself.
func (in *Interpreter) afterTransition(ec *model.ExecutionContext) {
	switch ec.State {
	case model.RUNNING, model.SUSPENDED_CALL:
		if persistence.IsInFlight(ec) {
			in.schedule(ec.Key())
		}
	case model.COMPLETED:
		logger.Info("context completed", zap.String("key", ec.Key().String()))
		analytics.RecordFlowCompleted(ec.FlowId, ec.ConversationId)
	case model.FAILED:
		logger.Info("context failed", zap.String("key", ec.Key().String()), zap.String("error", ec.Error))
		analytics.RecordFlowFailed(ec.FlowId, ec.ConversationId, ec.CurrentNodeId, ec.Error)
	}
}

func (in *Interpreter) schedule(key model.ContextKey) {
	if !in.dispatcher.Dispatch(func() { in.run(context.Background(), key) }) {
		logger.Error("dispatcher stopped, context left running", zap.String("key", key.String()))
	}
}

func (in *Interpreter) latest(ctx context.Context, ec *model.ExecutionContext) *model.ExecutionContext {
	if cur, err := in.store.Load(ctx, ec.Key()); err == nil && cur.Id == ec.Id {
		return cur
	}
	return ec
}

func (in *Interpreter) markFailed(ec *model.ExecutionContext, reason string) {
	ec.State = model.FAILED
	ec.Error = reason
	ec.ResumeAt = nil
	ec.PendingCall = nil
}

func (in *Interpreter) failRuntime(ctx context.Context, ec *model.ExecutionContext, reason string) error {
	rtErr := RuntimeError{FlowId: ec.FlowId, NodeId: ec.CurrentNodeId, Reason: reason}
	in.markFailed(ec, rtErr.Error())
	if err := in.save(ctx, ec); err != nil {
		return err
	}
	in.afterTransition(ec)
	return rtErr
}
