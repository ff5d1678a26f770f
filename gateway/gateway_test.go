package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mohitkumar/chatflow/model"
	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	require.NoError(t, ClassifyStatus(200))
	require.NoError(t, ClassifyStatus(204))
	for _, status := range []int{500, 502, 503, 408, 429} {
		err := ClassifyStatus(status)
		require.Error(t, err)
		require.True(t, IsRetryable(err), "status %d", status)
	}
	for _, status := range []int{400, 401, 404, 422} {
		err := ClassifyStatus(status)
		require.Error(t, err)
		require.False(t, IsRetryable(err), "status %d", status)
	}
	require.True(t, IsRetryable(errors.New("connection reset")))
	require.False(t, IsRetryable(context.Canceled))
	require.False(t, IsRetryable(Permanent(errors.New("bad input"))))
}

func TestWebhookCaller(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			body, _ := io.ReadAll(r.Body)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"method": r.Method, "echo": string(body), "type": r.Header.Get("Content-Type")})
		case "/text":
			w.Write([]byte("plain"))
		case "/fail":
			w.WriteHeader(http.StatusInternalServerError)
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		case "/slow":
			time.Sleep(200 * time.Millisecond)
		}
	}))
	defer srv.Close()
	caller := NewRestyWebhookCaller(100 * time.Millisecond)
	ctx := context.Background()

	resp, err := caller.Call(ctx, WebhookRequest{Method: "post", URL: srv.URL + "/ok", Body: `{"a":1}`})
	require.NoError(t, err)
	require.Equal(t, 200, resp.Status)
	body := resp.Body.(map[string]any)
	require.Equal(t, "POST", body["method"])
	require.Equal(t, `{"a":1}`, body["echo"])
	require.Equal(t, "application/json", body["type"])

	resp, err = caller.Call(ctx, WebhookRequest{Method: "GET", URL: srv.URL + "/text"})
	require.NoError(t, err)
	require.Equal(t, "plain", resp.Body)

	resp, err = caller.Call(ctx, WebhookRequest{Method: "GET", URL: srv.URL + "/fail"})
	require.Error(t, err)
	require.True(t, IsRetryable(err))
	require.Equal(t, 500, resp.Status)

	_, err = caller.Call(ctx, WebhookRequest{Method: "GET", URL: srv.URL + "/missing"})
	require.Error(t, err)
	require.False(t, IsRetryable(err))

	_, err = caller.Call(ctx, WebhookRequest{Method: "GET", URL: srv.URL + "/slow"})
	require.Error(t, err)
	require.True(t, IsRetryable(err))
}

func TestWebhookCallerContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(300 * time.Millisecond):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	caller := NewRestyWebhookCaller(time.Second)

	for scenario, fn := range map[string]func(t *testing.T){
		"deadline exceeded is retryable": func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			_, err := caller.Call(ctx, WebhookRequest{Method: "GET", URL: srv.URL})
			require.Error(t, err)
			require.True(t, IsRetryable(err))
		},
		"cancelled is permanent": func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			time.AfterFunc(50*time.Millisecond, cancel)
			_, err := caller.Call(ctx, WebhookRequest{Method: "GET", URL: srv.URL})
			require.Error(t, err)
			require.False(t, IsRetryable(err))
		},
	} {
		t.Run(scenario, fn)
	}
}

func TestMessageSender(t *testing.T) {
	var got outboundEnvelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()
	sender := NewRestyMessageSender(srv.URL+"/", time.Second)
	err := sender.Send(context.Background(), "conv-1", model.OutboundMessage{NodeId: "n", Type: model.NODE_BUTTON, Text: "Pick", Options: []string{"a", "b"}})
	require.NoError(t, err)
	require.Equal(t, "conv-1", got.ConversationId)
	require.Equal(t, []string{"a", "b"}, got.Message.Options)
}

func TestActionRouter(t *testing.T) {
	var email map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/mail":
			json.NewDecoder(r.Body).Decode(&email)
		case "/api/42":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer srv.Close()
	records := NewMemoryRecordWriter()
	router := NewActionRouter(NewRestyEmailRelay(srv.URL+"/mail", time.Second), records, NewRestyWebhookCaller(time.Second))
	ctx := context.Background()
	vars := map[string]any{"email": "x@y.z", "id": "42", "url": srv.URL}

	_, err := router.Perform(ctx, ActionRequest{Type: model.ACTION_SEND_EMAIL, Value: "{{email}}|Hello|Body text", Variables: vars})
	require.NoError(t, err)
	require.Equal(t, "x@y.z", email["to"])
	require.Equal(t, "Hello", email["subject"])

	_, err = router.Perform(ctx, ActionRequest{Type: model.ACTION_SAVE_DATABASE, Value: "lead={{id}}", FlowId: "f", ConversationId: "c", Variables: vars})
	require.NoError(t, err)
	recs := records.Records("c")
	require.Len(t, recs, 1)
	require.Equal(t, "lead", recs[0].Key)
	require.Equal(t, "42", recs[0].Value)

	resp, err := router.Perform(ctx, ActionRequest{Type: model.ACTION_CALL_API, Value: "GET {{url}}/api/{{id}}", Variables: vars})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"ok": true}, resp.Body)

	_, err = router.Perform(ctx, ActionRequest{Type: model.ACTION_SEND_EMAIL, Value: "broken", Variables: vars})
	require.Error(t, err)
	require.False(t, IsRetryable(err))

	_, err = router.Perform(ctx, ActionRequest{Type: "teleport", Value: "x"})
	require.False(t, IsRetryable(err))
}

func TestOpenAICompleter(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":{"message":"nope","type":"server_error"}}`))
			return
		}
		msgs := req["messages"].([]any)
		prompt := msgs[0].(map[string]any)["content"].(string)
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"model":   req["model"],
			"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": "echo: " + prompt}, "finish_reason": "stop"}},
		})
	}))
	defer srv.Close()
	completer := NewOpenAICompleter("test-key", srv.URL, "", time.Second)
	ctx := context.Background()

	text, err := completer.Complete(ctx, "gpt-3.5-turbo", "hello")
	require.NoError(t, err)
	require.Equal(t, "echo: hello", text)

	status = http.StatusInternalServerError
	_, err = completer.Complete(ctx, "", "hello")
	require.Error(t, err)
	require.True(t, IsRetryable(err))

	status = http.StatusUnauthorized
	_, err = completer.Complete(ctx, "", "hello")
	require.Error(t, err)
	require.False(t, IsRetryable(err))
}
