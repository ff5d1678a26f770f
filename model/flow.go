package model

type StartRequest struct {
	FlowId         string         `json:"flowId"`
	ConversationId string         `json:"conversationId"`
	Variables      map[string]any `json:"variables"`
}

type ReplyEvent struct {
	ConversationId string `json:"conversationId"`
	Text           string `json:"text"`
}

type CancelRequest struct {
	Reason string `json:"reason"`
}

// OutboundMessage is what the message-send gateway delivers for one node.
type OutboundMessage struct {
	NodeId  string   `json:"nodeId"`
	Type    NodeType `json:"type"`
	Text    string   `json:"text,omitempty"`
	Caption string   `json:"caption,omitempty"`
	Title   string   `json:"title,omitempty"`
	URL     string   `json:"url,omitempty"`
	Options []string `json:"options,omitempty"`
}
