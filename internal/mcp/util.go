package mcp

import (
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// dataToMCP marshals arbitrary data into a single JSON text content.
// One uniform shape keeps clients from guessing which tool returns
// which content layout.
func dataToMCP(data any) *mcp.CallToolResult {
	b, err := json.Marshal(data)
	if err != nil {
		return errorResult("encoding result failed")
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}
}

// errorResult reports a tool-level failure to the client. Protocol
// errors are reserved for transport problems; bad input and missing
// documents flow back as IsError results the model can react to.
func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}
