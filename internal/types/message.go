// Package types contains shared types used across multiple packages.
// This helps avoid import cycles between packages like llm, tools and agent.
package types

import (
	"encoding/json"
)

// Message roles.
const (
	RoleUser       = "user"
	RoleAssistant  = "assistant"
	RoleToolUse    = "tool_use"
	RoleToolResult = "tool_result"
)

// Message is a single conversation entry, provider-agnostic.
// A tool call and its result are separate messages paired by ToolUseID.
type Message struct {
	Role      string          `json:"role"` // "user", "assistant", "tool_use", "tool_result"
	Content   string          `json:"content"`
	ToolUseID string          `json:"toolUseId,omitempty"` // for tool_use and tool_result
	ToolName  string          `json:"toolName,omitempty"`  // for tool_use and tool_result
	ToolInput json.RawMessage `json:"toolInput,omitempty"` // for tool_use
	IsError   bool            `json:"isError,omitempty"`   // for tool_result
}

// UserMessage builds a user turn.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}
