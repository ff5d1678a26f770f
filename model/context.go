package model

import "time"

type ContextState string

const (
	RUNNING         ContextState = "running"
	SUSPENDED_TIMER ContextState = "suspended-timer"
	SUSPENDED_INPUT ContextState = "suspended-input"
	SUSPENDED_CALL  ContextState = "suspended-call"
	COMPLETED       ContextState = "completed"
	FAILED          ContextState = "failed"
)

func (s ContextState) IsTerminal() bool {
	return s == COMPLETED || s == FAILED
}

// IsActive reports whether a context in this state still owns its
// conversation for the flow.
func (s ContextState) IsActive() bool {
	return !s.IsTerminal()
}

type PendingCall struct {
	Id        string     `json:"id"`
	NodeId    string     `json:"nodeId"`
	Attempt   int        `json:"attempt"`
	RetryAt   *time.Time `json:"retryAt,omitempty"`
	LastError string     `json:"lastError,omitempty"`
}

type ExecutionContext struct {
	Id             string         `json:"id"`
	FlowId         string         `json:"flowId"`
	FlowVersion    int            `json:"flowVersion"`
	ConversationId string         `json:"conversationId"`
	CurrentNodeId  string         `json:"currentNodeId"`
	Variables      map[string]any `json:"variables"`
	State          ContextState   `json:"status"`
	ResumeAt       *time.Time     `json:"resumeAt,omitempty"`
	PendingCall    *PendingCall   `json:"pendingCall,omitempty"`
	// LeaseUntil is set while the engine works on the context: running, or
	// waiting on a call that is out. Past it the context counts as stalled.
	LeaseUntil *time.Time `json:"leaseUntil,omitempty"`
	Error      string     `json:"error,omitempty"`
	Version    int64      `json:"version"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func (c *ExecutionContext) Key() ContextKey {
	return ContextKey{FlowId: c.FlowId, ConversationId: c.ConversationId}
}

// Clone returns a deep enough copy for handing contexts across goroutines.
func (c *ExecutionContext) Clone() *ExecutionContext {
	out := *c
	out.Variables = make(map[string]any, len(c.Variables))
	for k, v := range c.Variables {
		out.Variables[k] = v
	}
	if c.ResumeAt != nil {
		t := *c.ResumeAt
		out.ResumeAt = &t
	}
	if c.LeaseUntil != nil {
		t := *c.LeaseUntil
		out.LeaseUntil = &t
	}
	if c.PendingCall != nil {
		pc := *c.PendingCall
		if pc.RetryAt != nil {
			t := *pc.RetryAt
			pc.RetryAt = &t
		}
		out.PendingCall = &pc
	}
	return &out
}

type ContextKey struct {
	FlowId         string `json:"flowId"`
	ConversationId string `json:"conversationId"`
}

func (k ContextKey) String() string {
	return k.FlowId + "|" + k.ConversationId
}
