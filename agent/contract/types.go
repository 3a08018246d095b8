package contract

import (
	"encoding/json"

	"github.com/cloudwego/eino/schema"
)

type Stage string

const (
	StageLoad         Stage = "load"
	StageRespond      Stage = "respond"
	StageExecuteTools Stage = "execute_tools"
	StageFinalize     Stage = "finalize"
	StageSave         Stage = "save"
)

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
)

type RespondRequest struct {
	UserID   string            `json:"user_id"`
	Messages []*schema.Message `json:"messages"`
}

type RespondResponse struct {
	// Message is the raw assistant message, kept so tool results can be
	// appended after it in the working history.
	Message      *schema.Message `json:"message"`
	Reply        TextReply       `json:"reply"`
	ToolRequests []ToolRequest   `json:"tool_requests,omitempty"`
}

type FinalizeRequest struct {
	UserID   string            `json:"user_id"`
	Messages []*schema.Message `json:"messages"`
}

type ToolRequest struct {
	CallID    string `json:"call_id,omitempty"`
	Tool      string `json:"tool"`
	Arguments string `json:"arguments,omitempty"`
}

type ToolResult struct {
	CallID string         `json:"call_id,omitempty"`
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args,omitempty"`
	Result any            `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Content renders the result as the text fed back to the model.
func (r ToolResult) Content() string {
	if r.Error != "" {
		raw, _ := json.Marshal(map[string]string{"error": r.Error})
		return string(raw)
	}
	if s, ok := r.Result.(string); ok {
		return s
	}
	if r.Result == nil {
		return "{}"
	}
	raw, err := json.Marshal(r.Result)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
