package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"go.uber.org/zap"
)

func newRestyClient(timeout time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", "chatflow")
}

var _ WebhookCaller = new(RestyWebhookCaller)

type RestyWebhookCaller struct {
	client *resty.Client
}

func NewRestyWebhookCaller(timeout time.Duration) *RestyWebhookCaller {
	return &RestyWebhookCaller{client: newRestyClient(timeout)}
}

func (w *RestyWebhookCaller) Call(ctx context.Context, req WebhookRequest) (Response, error) {
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = resty.MethodPost
	}
	r := w.client.R().SetContext(ctx)
	if body := strings.TrimSpace(req.Body); body != "" {
		if json.Valid([]byte(body)) {
			r.SetHeader("Content-Type", "application/json")
		}
		r.SetBody(body)
	}
	resp, err := r.Execute(method, req.URL)
	if err != nil {
		logger.Error("webhook call failed", zap.String("method", method), zap.String("url", req.URL), zap.Error(err))
		return Response{}, Error{Retryable: !errors.Is(err, context.Canceled), Err: fmt.Errorf("http request failed: %w", err)}
	}
	out := Response{Status: resp.StatusCode(), Body: decodeBody(resp.Body())}
	return out, ClassifyStatus(resp.StatusCode())
}

// decodeBody returns parsed JSON when possible and the raw text otherwise.
func decodeBody(data []byte) any {
	if len(data) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(data, &v); err == nil {
		return v
	}
	return string(data)
}

var _ MessageSender = new(RestyMessageSender)

// RestyMessageSender posts outbound messages to the messaging transport.
type RestyMessageSender struct {
	client  *resty.Client
	baseURL string
}

type outboundEnvelope struct {
	ConversationId string                `json:"conversationId"`
	Message        model.OutboundMessage `json:"message"`
}

func NewRestyMessageSender(baseURL string, timeout time.Duration) *RestyMessageSender {
	return &RestyMessageSender{
		client:  newRestyClient(timeout),
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (s *RestyMessageSender) Send(ctx context.Context, conversationId string, msg model.OutboundMessage) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(outboundEnvelope{ConversationId: conversationId, Message: msg}).
		Post(s.baseURL + "/messages")
	if err != nil {
		return Error{Retryable: true, Err: fmt.Errorf("message send failed: %w", err)}
	}
	return ClassifyStatus(resp.StatusCode())
}

var _ MessageSender = new(LogMessageSender)

// LogMessageSender only logs outbound messages. Used when no transport is
// configured.
type LogMessageSender struct{}

func (LogMessageSender) Send(_ context.Context, conversationId string, msg model.OutboundMessage) error {
	logger.Info("outbound message", zap.String("conversationId", conversationId), zap.String("nodeId", msg.NodeId),
		zap.String("type", string(msg.Type)), zap.String("text", msg.Text))
	return nil
}
