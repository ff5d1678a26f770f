package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohitkumar/chatflow/gateway"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"github.com/mohitkumar/chatflow/persistence"
	"go.uber.org/zap"
)

var errCallLost = errors.New("call did not complete before the stall timeout")

// RecoverStalled takes over an in-flight context whose lease expired, which
// happens when its worker died or its save failed. A running context is run
// again. An outstanding call counts as a failed attempt and goes through the
// normal retry path; the retry gets a fresh call id.
func (in *Interpreter) RecoverStalled(ctx context.Context, key model.ContextKey) (*model.ExecutionContext, error) {
	ec, err := in.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if !persistence.IsStalled(ec, in.now()) {
		return ec, nil
	}
	logger.Info("recovering stalled context", zap.String("key", key.String()), zap.String("state", string(ec.State)), zap.Timep("leaseUntil", ec.LeaseUntil))
	if ec.State == model.SUSPENDED_CALL {
		fl, err := in.flows.GetFlow(ctx, ec.FlowId, ec.FlowVersion)
		if err != nil {
			return nil, in.failRuntime(ctx, ec, fmt.Sprintf("flow version %d unavailable: %v", ec.FlowVersion, err))
		}
		node, ok := fl.Node(ec.PendingCall.NodeId)
		if !ok {
			return nil, in.failRuntime(ctx, ec, "call node not found in flow")
		}
		in.callFailed(ec, node, gateway.Error{Retryable: true, Err: errCallLost})
	}
	if err := in.save(ctx, ec); err != nil {
		return nil, err
	}
	in.afterTransition(ec)
	return ec, nil
}

// SweepStalled recovers every in-flight context whose lease expired.
func (in *Interpreter) SweepStalled(ctx context.Context) (int, error) {
	stalled, err := in.store.ListStalled(ctx, in.now())
	if err != nil {
		return 0, err
	}
	recovered := 0
	for _, ec := range stalled {
		if _, err := in.RecoverStalled(ctx, ec.Key()); err != nil {
			if !persistence.IsConflict(err) {
				logger.Error("error recovering stalled context", zap.String("key", ec.Key().String()), zap.Error(err))
			}
			continue
		}
		recovered++
	}
	return recovered, nil
}
