package flow

import (
	"fmt"
	"strings"
)

// ParseError is returned when persisted or imported bytes are not a graph.
type ParseError struct {
	Err error
}

func (e ParseError) Error() string {
	return fmt.Sprintf("flow parse error: %v", e.Err)
}

func (e ParseError) Unwrap() error {
	return e.Err
}

// GraphValidationError blocks publishing because of a structural problem.
type GraphValidationError struct {
	Issues []Issue
}

func (e GraphValidationError) Error() string {
	return "graph validation failed: " + joinIssues(e.Issues)
}

// ConfigValidationError blocks publishing because node configuration is
// missing or malformed.
type ConfigValidationError struct {
	Issues []Issue
}

func (e ConfigValidationError) Error() string {
	return "node configuration invalid: " + joinIssues(e.Issues)
}

func joinIssues(issues []Issue) string {
	parts := make([]string, 0, len(issues))
	for _, is := range issues {
		parts = append(parts, is.String())
	}
	return strings.Join(parts, "; ")
}
