package action

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/mohitkumar/chatflow/util"
)

type Email struct {
	To      string
	Subject string
	Body    string
}

// ParseEmail reads a send_email value of the form to|subject|body.
func ParseEmail(actionValue string, vars map[string]any) (Email, error) {
	parts := strings.SplitN(util.Render(actionValue, vars), "|", 3)
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" {
		return Email{}, fmt.Errorf("send_email expects to|subject|body, got %q", actionValue)
	}
	email := Email{To: strings.TrimSpace(parts[0]), Subject: strings.TrimSpace(parts[1])}
	if len(parts) == 3 {
		email.Body = parts[2]
	}
	return email, nil
}

// ParseRecord reads a save_database value of the form key=value.
func ParseRecord(actionValue string, vars map[string]any) (string, string, error) {
	key, value, ok := strings.Cut(actionValue, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("save_database expects key=value, got %q", actionValue)
	}
	return key, util.Render(strings.TrimSpace(value), vars), nil
}

// ParseCall reads a call_api value, either "METHOD URL" or a bare URL for GET.
func ParseCall(actionValue string, vars map[string]any) (string, string, error) {
	fields := strings.Fields(actionValue)
	switch len(fields) {
	case 1:
		return http.MethodGet, util.Render(fields[0], vars), nil
	case 2:
		return strings.ToUpper(fields[0]), util.Render(fields[1], vars), nil
	}
	return "", "", fmt.Errorf("call_api expects [METHOD] URL, got %q", actionValue)
}
