package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mohitkumar/chatflow/action"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"go.uber.org/zap"
)

type EmailSender interface {
	SendEmail(ctx context.Context, email action.Email) error
}

type Record struct {
	Id             string         `json:"id"`
	FlowId         string         `json:"flowId"`
	ConversationId string         `json:"conversationId"`
	Key            string         `json:"key"`
	Value          string         `json:"value"`
	Variables      map[string]any `json:"variables"`
}

type RecordWriter interface {
	WriteRecord(ctx context.Context, rec Record) error
}

var _ ActionPerformer = new(ActionRouter)

// ActionRouter performs the side effects of action nodes other than
// save_variable, which never leaves the interpreter.
type ActionRouter struct {
	email   EmailSender
	records RecordWriter
	api     WebhookCaller
}

func NewActionRouter(email EmailSender, records RecordWriter, api WebhookCaller) *ActionRouter {
	return &ActionRouter{email: email, records: records, api: api}
}

func (r *ActionRouter) Perform(ctx context.Context, req ActionRequest) (Response, error) {
	switch req.Type {
	case model.ACTION_SEND_EMAIL:
		email, err := action.ParseEmail(req.Value, req.Variables)
		if err != nil {
			return Response{}, Permanent(err)
		}
		return Response{}, r.email.SendEmail(ctx, email)
	case model.ACTION_SAVE_DATABASE:
		key, value, err := action.ParseRecord(req.Value, req.Variables)
		if err != nil {
			return Response{}, Permanent(err)
		}
		return Response{}, r.records.WriteRecord(ctx, Record{
			Id:             uuid.NewString(),
			FlowId:         req.FlowId,
			ConversationId: req.ConversationId,
			Key:            key,
			Value:          value,
			Variables:      req.Variables,
		})
	case model.ACTION_CALL_API:
		method, url, err := action.ParseCall(req.Value, req.Variables)
		if err != nil {
			return Response{}, Permanent(err)
		}
		return r.api.Call(ctx, WebhookRequest{Method: method, URL: url})
	}
	return Response{}, Permanent(fmt.Errorf("unsupported action type %q", req.Type))
}

var _ EmailSender = new(RestyEmailRelay)

// RestyEmailRelay hands emails to an HTTP mail relay.
type RestyEmailRelay struct {
	client *resty.Client
	url    string
}

func NewRestyEmailRelay(url string, timeout time.Duration) *RestyEmailRelay {
	return &RestyEmailRelay{client: newRestyClient(timeout), url: url}
}

func (e *RestyEmailRelay) SendEmail(ctx context.Context, email action.Email) error {
	if e.url == "" {
		logger.Info("email relay not configured, dropping email", zap.String("to", email.To), zap.String("subject", email.Subject))
		return nil
	}
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"to": email.To, "subject": email.Subject, "body": email.Body}).
		Post(e.url)
	if err != nil {
		return Error{Retryable: true, Err: fmt.Errorf("email relay request failed: %w", err)}
	}
	return ClassifyStatus(resp.StatusCode())
}

var _ RecordWriter = new(PostgresRecordWriter)

type PostgresRecordWriter struct {
	db *pgxpool.Pool
}

func NewPostgresRecordWriter(db *pgxpool.Pool) *PostgresRecordWriter {
	return &PostgresRecordWriter{db: db}
}

func (w *PostgresRecordWriter) WriteRecord(ctx context.Context, rec Record) error {
	vars := rec.Variables
	if vars == nil {
		vars = map[string]any{}
	}
	_, err := w.db.Exec(ctx,
		`INSERT INTO flow_records (id, flow_id, conversation_id, key, value, variables)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.Id, rec.FlowId, rec.ConversationId, rec.Key, rec.Value, vars)
	if err != nil {
		logger.Error("error in saving flow record", zap.String("flowId", rec.FlowId), zap.String("key", rec.Key), zap.Error(err))
		return Error{Retryable: true, Err: err}
	}
	return nil
}

var _ RecordWriter = new(MemoryRecordWriter)

type MemoryRecordWriter struct {
	mu      sync.Mutex
	records []Record
}

func NewMemoryRecordWriter() *MemoryRecordWriter {
	return &MemoryRecordWriter{}
}

func (w *MemoryRecordWriter) WriteRecord(_ context.Context, rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, rec)
	return nil
}

func (w *MemoryRecordWriter) Records(conversationId string) []Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []Record
	for _, rec := range w.records {
		if rec.ConversationId == conversationId {
			out = append(out, rec)
		}
	}
	return out
}
