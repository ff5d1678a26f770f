package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/mohitkumar/chatflow/model"
)

type MessageSender interface {
	Send(ctx context.Context, conversationId string, msg model.OutboundMessage) error
}

type WebhookRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
	Body   string `json:"body,omitempty"`
}

type Response struct {
	Status int `json:"status"`
	Body   any `json:"body"`
}

type WebhookCaller interface {
	// Call returns the response together with a classified Error for
	// non-2xx statuses.
	Call(ctx context.Context, req WebhookRequest) (Response, error)
}

type AICompleter interface {
	Complete(ctx context.Context, model string, prompt string) (string, error)
}

type ActionRequest struct {
	Type           model.ActionType
	Value          string
	FlowId         string
	ConversationId string
	Variables      map[string]any
}

type ActionPerformer interface {
	Perform(ctx context.Context, req ActionRequest) (Response, error)
}

// Error is a gateway failure classified as retryable or permanent.
type Error struct {
	Retryable  bool
	StatusCode int
	Err        error
}

func (e Error) Error() string {
	kind := "permanent"
	if e.Retryable {
		kind = "retryable"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s gateway error (status %d): %v", kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s gateway error: %v", kind, e.Err)
}

func (e Error) Unwrap() error {
	return e.Err
}

func Permanent(err error) error {
	return Error{Retryable: false, Err: err}
}

// ClassifyStatus maps an HTTP status to nil for success, a retryable Error
// for 5xx, 408 and 429, and a permanent Error for other 4xx.
func ClassifyStatus(status int) error {
	switch {
	case status < 400:
		return nil
	case status >= 500, status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return Error{Retryable: true, StatusCode: status, Err: errors.New(http.StatusText(status))}
	}
	return Error{Retryable: false, StatusCode: status, Err: errors.New(http.StatusText(status))}
}

// IsRetryable reports whether a failed call may be attempted again. Errors
// that were never classified are transport failures and retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var gErr Error
	if errors.As(err, &gErr) {
		return gErr.Retryable
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return true
}
