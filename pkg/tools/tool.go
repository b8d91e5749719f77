// Package tools defines the tool surface exposed to agents that drive
// postpilot through XML tool calls, and the parser for those calls.
package tools

import (
	"context"
	"encoding/xml"
)

// Tool is a capability an agent invokes through an XML tool call.
//
// Example tool call:
//
//	<tool>
//	<server_name>local</server_name>
//	<tool_name>publish_post</tool_name>
//	<arguments>
//	  <image>/home/me/sunset.jpg</image>
//	  <caption><![CDATA[Golden hour #sunset]]></caption>
//	</arguments>
//	</tool>
type Tool interface {
	// Name returns the unique identifier for this tool (e.g., "publish_post")
	Name() string

	// Description returns a human-readable description of what this tool does
	Description() string

	// Schema returns the JSON schema for this tool's input parameters
	Schema() map[string]interface{}

	// Execute runs the tool with the given XML arguments.
	// Returns: (result string, metadata map, error)
	Execute(ctx context.Context, argumentsXML []byte) (string, map[string]interface{}, error)
}

// ToolCall represents a parsed tool invocation
type ToolCall struct {
	XMLName    xml.Name       `xml:"tool"`
	ServerName string         `xml:"server_name"`
	ToolName   string         `xml:"tool_name"`
	Arguments  ArgumentsBlock `xml:"arguments"`
}

// ArgumentsBlock holds the raw XML of the arguments element
type ArgumentsBlock struct {
	InnerXML []byte `xml:",innerxml"`
}

// GetArgumentsXML returns the arguments wrapped in <arguments> tags for unmarshaling.
func (tc *ToolCall) GetArgumentsXML() []byte {
	const prefix = "<arguments>"
	const suffix = "</arguments>"

	result := make([]byte, 0, len(prefix)+len(tc.Arguments.InnerXML)+len(suffix))
	result = append(result, []byte(prefix)...)
	result = append(result, tc.Arguments.InnerXML...)
	result = append(result, []byte(suffix)...)
	return result
}

// Previewable is implemented by tools that can describe what they would do
// without doing it.
type Previewable interface {
	GeneratePreview(ctx context.Context, argumentsXML []byte) (*ToolPreview, error)
}

// ToolPreview describes a pending tool action.
type ToolPreview struct {
	Title       string
	Description string
	Content     string
	Metadata    map[string]interface{}
}

// BaseToolSchema creates a common JSON schema structure for a tool
// with the given properties and required fields
func BaseToolSchema(properties map[string]interface{}, required []string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
