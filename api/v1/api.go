// Package api_v1 holds the request errors and response bodies of the HTTP
// surface.
package api_v1

import (
	"fmt"

	"github.com/mohitkumar/chatflow/flow"
	"github.com/mohitkumar/chatflow/model"
)

// InvalidRequestError reports a request missing a field it needs.
type InvalidRequestError struct {
	Field  string
	Reason string
}

func (e InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

type ErrorResponse struct {
	Error  string       `json:"error"`
	Issues []flow.Issue `json:"issues,omitempty"`
}

type DraftResponse struct {
	Flow   *model.Graph `json:"flow"`
	Issues []flow.Issue `json:"issues"`
}

type IssuesResponse struct {
	Issues []flow.Issue `json:"issues"`
}

type HistoryResponse struct {
	Current *model.ExecutionContext   `json:"current,omitempty"`
	History []*model.ExecutionContext `json:"history"`
}
