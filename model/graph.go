package model

type NodeType string

const (
	NODE_START     NodeType = "start"
	NODE_MESSAGE   NodeType = "message"
	NODE_BUTTON    NodeType = "button"
	NODE_LIST      NodeType = "list"
	NODE_INPUT     NodeType = "input"
	NODE_AUDIO     NodeType = "audio"
	NODE_IMAGE     NodeType = "image"
	NODE_VIDEO     NodeType = "video"
	NODE_DELAY     NodeType = "delay"
	NODE_CONDITION NodeType = "condition"
	NODE_AI        NodeType = "ai"
	NODE_ACTION    NodeType = "action"
	NODE_WEBHOOK   NodeType = "webhook"
	NODE_END       NodeType = "end"
)

// Handles used on the two outgoing edges of a condition node.
const (
	HANDLE_YES = "yes"
	HANDLE_NO  = "no"
)

type ConditionOperator string

const (
	OP_EQUALS       ConditionOperator = "equals"
	OP_NOT_EQUALS   ConditionOperator = "not_equals"
	OP_CONTAINS     ConditionOperator = "contains"
	OP_NOT_CONTAINS ConditionOperator = "not_contains"
	OP_GREATER      ConditionOperator = "greater"
	OP_LESS         ConditionOperator = "less"
)

type ActionType string

const (
	ACTION_SAVE_VARIABLE ActionType = "save_variable"
	ACTION_SEND_EMAIL    ActionType = "send_email"
	ACTION_SAVE_DATABASE ActionType = "save_database"
	ACTION_CALL_API      ActionType = "call_api"
)

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// NodeConfig is the payload of a node. Which fields are meaningful depends on
// the node type; the registry describes the fields of every type.
type NodeConfig struct {
	Label       string            `json:"label,omitempty"`
	Message     string            `json:"message,omitempty"`
	Caption     string            `json:"caption,omitempty"`
	Buttons     []string          `json:"buttons"`
	Title       string            `json:"title,omitempty"`
	ListItems   []string          `json:"listItems"`
	Variable    string            `json:"variable,omitempty"`
	URL         string            `json:"url,omitempty"`
	Delay       int               `json:"delay,omitempty"`
	Operator    ConditionOperator `json:"operator,omitempty"`
	Value       string            `json:"value,omitempty"`
	Prompt      string            `json:"prompt,omitempty"`
	AIModel     string            `json:"aiModel,omitempty"`
	ActionType  ActionType        `json:"actionType,omitempty"`
	ActionValue string            `json:"actionValue,omitempty"`
	Method      string            `json:"method,omitempty"`
	Body        string            `json:"body,omitempty"`
}

type Node struct {
	Id       string     `json:"id"`
	Type     NodeType   `json:"type"`
	Position Position   `json:"position"`
	Config   NodeConfig `json:"config"`
}

type Edge struct {
	Id           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

type Graph struct {
	Id      string `json:"id,omitempty"`
	Name    string `json:"name"`
	Version int    `json:"version,omitempty"`
	Nodes   []Node `json:"nodes"`
	Edges   []Edge `json:"edges"`
}

// FlowSummary is the listing view of a stored flow.
type FlowSummary struct {
	Id               string `json:"id"`
	Name             string `json:"name"`
	Version          int    `json:"version"`
	PublishedVersion int    `json:"publishedVersion"`
}
