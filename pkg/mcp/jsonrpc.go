package mcp

import "encoding/json"

// Version is the JSON-RPC protocol version tag sent on every request.
const Version = "2.0"

// Request is an outbound JSON-RPC 2.0 request envelope. ID is empty for
// streaming calls, which are framed as notifications.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is an inbound JSON-RPC 2.0 response envelope. Exactly one of
// Result or Error is present in a well-formed response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RemoteError    `json:"error,omitempty"`
}

// Tool is one entry of a tools/list response.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}
