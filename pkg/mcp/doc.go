// Package mcp is a JSON-RPC 2.0 client for Mapbox MCP tool servers.
//
// It owns a single logical HTTP connection to a server, mints and caches
// short-lived JWT credentials via pkg/auth, and frames calls as JSON-RPC
// requests, either plain request/response or a server-sent-event stream.
//
// # Creating a client
//
// The server URL is normalized to end in the canonical /mcp path, and a
// per-client session UUID is attached to every call:
//
//	issuer, err := auth.NewIssuer(auth.Config{Secret: os.Getenv("JWT_SECRET")})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	c, err := mcp.New(os.Getenv("MCP_SERVER_URL"), issuer,
//	    mcp.WithTimeout(30*time.Second),
//	    mcp.WithLogger(logger),
//	)
//	defer c.Close()
//
// # Calling tools
//
// CallTool wraps the tools/call method and unwraps one result nesting
// level when the server uses it:
//
//	out, err := c.CallTool(ctx, "forward_geocode_tool", map[string]any{
//	    "q": "1600 Pennsylvania Ave", "limit": 1,
//	})
//
// ListTools returns the server's tool catalog, and Request is the raw
// escape hatch for any other JSON-RPC method.
//
// # Streaming
//
// Stream opens a text/event-stream connection and yields events lazily:
//
//	stream, err := c.Stream(ctx, "tools/call", params)
//	if err != nil { ... }
//	defer stream.Close()
//	for stream.Next() {
//	    var chunk MyChunk
//	    json.Unmarshal(stream.Event().Data, &chunk)
//	}
//	if err := stream.Err(); err != nil { ... }
//
// Events with malformed payloads are logged and skipped; one bad frame
// never aborts an otherwise-healthy stream.
//
// # Errors
//
// Failures surface as *ConfigError, *TransportError, *TimeoutError,
// *RemoteError, or ErrClientClosed. The client itself never retries:
// tool calls are not guaranteed idempotent, so retry policy belongs to
// the caller.
package mcp
