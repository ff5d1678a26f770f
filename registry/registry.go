// Package registry describes every node type a flow may contain: the
// configuration fields it carries, which are required, how they are
// validated and the payload a freshly dropped node starts with.
package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mohitkumar/chatflow/model"
)

type FieldKind string

const (
	KIND_STRING FieldKind = "string"
	KIND_TEXT   FieldKind = "text"
	KIND_LIST   FieldKind = "list"
	KIND_NUMBER FieldKind = "number"
	KIND_ENUM   FieldKind = "enum"
	KIND_URL    FieldKind = "url"
)

type Field struct {
	Name     string    `json:"name"`
	Kind     FieldKind `json:"kind"`
	Required bool      `json:"required"`
	Options  []string  `json:"options,omitempty"`
	// Rules is a validator tag applied to the value when it is present.
	Rules string `json:"rules,omitempty"`
}

type Schema struct {
	Type   model.NodeType `json:"type"`
	Fields []Field        `json:"fields"`
	// Branching is true for node types whose outgoing edges are selected by handle.
	Branching bool `json:"branching"`
	// Terminal is true for node types that never have a successor.
	Terminal bool `json:"terminal"`
	check    func(cfg model.NodeConfig) error
	defaults model.NodeConfig
}

// FieldError reports one invalid configuration field.
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("field %s %s", e.Field, e.Reason)
}

var operators = []string{
	string(model.OP_EQUALS), string(model.OP_NOT_EQUALS),
	string(model.OP_CONTAINS), string(model.OP_NOT_CONTAINS),
	string(model.OP_GREATER), string(model.OP_LESS),
}

var actionTypes = []string{
	string(model.ACTION_SAVE_VARIABLE), string(model.ACTION_SEND_EMAIL),
	string(model.ACTION_SAVE_DATABASE), string(model.ACTION_CALL_API),
}

var methods = []string{"GET", "POST", "PUT", "DELETE"}

func oneOf(options []string) string {
	return "oneof=" + strings.Join(options, " ")
}

var mediaFields = []Field{
	{Name: "url", Kind: KIND_URL, Required: true, Rules: "flow_url"},
	{Name: "caption", Kind: KIND_TEXT},
}

var schemas = map[model.NodeType]Schema{
	model.NODE_START: {
		Type:     model.NODE_START,
		Fields:   []Field{{Name: "label", Kind: KIND_STRING}},
		defaults: model.NodeConfig{Label: "Start"},
	},
	model.NODE_MESSAGE: {
		Type: model.NODE_MESSAGE,
		Fields: []Field{
			{Name: "message", Kind: KIND_TEXT, Required: true},
			{Name: "caption", Kind: KIND_TEXT},
		},
		defaults: model.NodeConfig{Message: "New message"},
	},
	model.NODE_BUTTON: {
		Type: model.NODE_BUTTON,
		Fields: []Field{
			{Name: "message", Kind: KIND_TEXT, Required: true},
			{Name: "buttons", Kind: KIND_LIST, Required: true, Rules: "dive,nonblank"},
		},
		defaults: model.NodeConfig{Message: "Choose an option", Buttons: []string{"Option 1", "Option 2"}},
	},
	model.NODE_LIST: {
		Type: model.NODE_LIST,
		Fields: []Field{
			{Name: "title", Kind: KIND_STRING, Required: true},
			{Name: "listItems", Kind: KIND_LIST, Required: true, Rules: "dive,nonblank"},
		},
		defaults: model.NodeConfig{Title: "Select an item", ListItems: []string{"Item 1", "Item 2"}},
	},
	model.NODE_INPUT: {
		Type: model.NODE_INPUT,
		Fields: []Field{
			{Name: "message", Kind: KIND_TEXT},
			{Name: "variable", Kind: KIND_STRING, Required: true, Rules: "variable_name"},
		},
		defaults: model.NodeConfig{Message: "Please type your answer", Variable: "answer"},
	},
	model.NODE_AUDIO: {
		Type:     model.NODE_AUDIO,
		Fields:   mediaFields,
		defaults: model.NodeConfig{URL: "https://example.com/audio.mp3"},
	},
	model.NODE_IMAGE: {
		Type:     model.NODE_IMAGE,
		Fields:   mediaFields,
		defaults: model.NodeConfig{URL: "https://example.com/image.png"},
	},
	model.NODE_VIDEO: {
		Type:     model.NODE_VIDEO,
		Fields:   mediaFields,
		defaults: model.NodeConfig{URL: "https://example.com/video.mp4"},
	},
	model.NODE_DELAY: {
		Type:     model.NODE_DELAY,
		Fields:   []Field{{Name: "delay", Kind: KIND_NUMBER, Required: true, Rules: "gt=0"}},
		defaults: model.NodeConfig{Delay: 5},
	},
	model.NODE_CONDITION: {
		Type: model.NODE_CONDITION,
		Fields: []Field{
			{Name: "variable", Kind: KIND_STRING, Required: true, Rules: "variable_name"},
			{Name: "operator", Kind: KIND_ENUM, Required: true, Options: operators, Rules: oneOf(operators)},
			{Name: "value", Kind: KIND_STRING},
		},
		Branching: true,
		defaults:  model.NodeConfig{Variable: "answer", Operator: model.OP_EQUALS},
	},
	model.NODE_AI: {
		Type: model.NODE_AI,
		Fields: []Field{
			{Name: "prompt", Kind: KIND_TEXT, Required: true},
			{Name: "aiModel", Kind: KIND_STRING, Required: true},
			{Name: "variable", Kind: KIND_STRING, Rules: "variable_name"},
		},
		defaults: model.NodeConfig{Prompt: "Answer the customer: {{answer}}", AIModel: "gpt-3.5-turbo"},
	},
	model.NODE_ACTION: {
		Type: model.NODE_ACTION,
		Fields: []Field{
			{Name: "actionType", Kind: KIND_ENUM, Required: true, Options: actionTypes, Rules: oneOf(actionTypes)},
			{Name: "actionValue", Kind: KIND_TEXT, Required: true},
		},
		check:    checkAction,
		defaults: model.NodeConfig{ActionType: model.ACTION_SAVE_VARIABLE, ActionValue: "status=done"},
	},
	model.NODE_WEBHOOK: {
		Type: model.NODE_WEBHOOK,
		Fields: []Field{
			{Name: "url", Kind: KIND_URL, Required: true, Rules: "flow_url"},
			{Name: "method", Kind: KIND_ENUM, Required: true, Options: methods, Rules: oneOf(methods)},
			{Name: "body", Kind: KIND_TEXT},
		},
		defaults: model.NodeConfig{URL: "https://example.com/webhook", Method: "POST"},
	},
	model.NODE_END: {
		Type:     model.NODE_END,
		Fields:   []Field{{Name: "label", Kind: KIND_STRING}},
		Terminal: true,
		defaults: model.NodeConfig{Label: "End"},
	},
}

// Types returns the registered node types in editor palette order.
func Types() []model.NodeType {
	return []model.NodeType{
		model.NODE_START, model.NODE_MESSAGE, model.NODE_BUTTON, model.NODE_LIST,
		model.NODE_INPUT, model.NODE_AUDIO, model.NODE_IMAGE, model.NODE_VIDEO,
		model.NODE_DELAY, model.NODE_CONDITION, model.NODE_AI, model.NODE_ACTION,
		model.NODE_WEBHOOK, model.NODE_END,
	}
}

func IsKnown(t model.NodeType) bool {
	_, ok := schemas[t]
	return ok
}

func SchemaFor(t model.NodeType) (Schema, error) {
	s, ok := schemas[t]
	if !ok {
		return Schema{}, fmt.Errorf("unknown node type %q", t)
	}
	return s, nil
}

func DefaultConfig(t model.NodeType) (model.NodeConfig, error) {
	s, ok := schemas[t]
	if !ok {
		return model.NodeConfig{}, fmt.Errorf("unknown node type %q", t)
	}
	cfg := s.defaults
	cfg.Buttons = append([]string(nil), s.defaults.Buttons...)
	cfg.ListItems = append([]string(nil), s.defaults.ListItems...)
	return cfg, nil
}

// Validate checks a node configuration against the schema of its type and
// returns every problem found.
func (s Schema) Validate(cfg model.NodeConfig) []FieldError {
	var errs []FieldError
	for _, f := range s.Fields {
		v, present := fieldValue(cfg, f.Name)
		if !present {
			if f.Required {
				errs = append(errs, FieldError{Field: f.Name, Reason: "is required"})
			}
			continue
		}
		if f.Rules == "" {
			continue
		}
		if err := validate.Var(v, f.Rules); err != nil {
			errs = append(errs, fieldError(f.Name, err))
		}
	}
	if s.check != nil {
		if err := s.check(cfg); err != nil {
			if fe, ok := err.(FieldError); ok {
				errs = append(errs, fe)
			} else {
				errs = append(errs, FieldError{Field: "config", Reason: err.Error()})
			}
		}
	}
	return errs
}

func fieldValue(cfg model.NodeConfig, name string) (any, bool) {
	var v string
	switch name {
	case "label":
		v = cfg.Label
	case "message":
		v = cfg.Message
	case "caption":
		v = cfg.Caption
	case "buttons":
		return cfg.Buttons, len(cfg.Buttons) > 0
	case "title":
		v = cfg.Title
	case "listItems":
		return cfg.ListItems, len(cfg.ListItems) > 0
	case "variable":
		v = cfg.Variable
	case "url":
		v = cfg.URL
	case "delay":
		return cfg.Delay, cfg.Delay != 0
	case "operator":
		v = string(cfg.Operator)
	case "value":
		v = cfg.Value
	case "prompt":
		v = cfg.Prompt
	case "aiModel":
		v = cfg.AIModel
	case "actionType":
		v = string(cfg.ActionType)
	case "actionValue":
		v = cfg.ActionValue
	case "method":
		v = strings.ToUpper(cfg.Method)
	case "body":
		v = cfg.Body
	}
	return v, strings.TrimSpace(v) != ""
}

// fieldError turns the first failed rule into a readable reason.
func fieldError(name string, err error) FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return FieldError{Field: name, Reason: err.Error()}
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "oneof":
		return FieldError{Field: name, Reason: "must be one of " + strings.Join(strings.Fields(fe.Param()), ", ")}
	case "gt":
		return FieldError{Field: name, Reason: "must be greater than " + fe.Param()}
	case "nonblank":
		return FieldError{Field: name, Reason: fmt.Sprintf("entry %s is empty", entryIndex(fe.Field()))}
	case "flow_url":
		return FieldError{Field: name, Reason: "must be an absolute url"}
	case "variable_name":
		return FieldError{Field: name, Reason: "must not contain spaces or braces"}
	case "assignment":
		return FieldError{Field: name, Reason: "must have the form name=value"}
	}
	return FieldError{Field: name, Reason: fmt.Sprintf("failed %s", fe.Tag())}
}

// entryIndex extracts "2" from a dive field name such as "[2]".
func entryIndex(field string) string {
	return strings.Trim(field, "[]")
}

func checkAction(cfg model.NodeConfig) error {
	switch cfg.ActionType {
	case model.ACTION_SAVE_VARIABLE, model.ACTION_SAVE_DATABASE:
		if cfg.ActionValue == "" {
			return nil
		}
		if err := validate.Var(cfg.ActionValue, "assignment"); err != nil {
			return fieldError("actionValue", err)
		}
	}
	return nil
}
