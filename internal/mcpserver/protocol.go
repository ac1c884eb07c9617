// Package mcpserver implements the line-delimited JSON-RPC transport that
// exposes search_regex, search_semantic, get_stats, and health_check to MCP
// clients over stdio. Unlike internal/mcp (which wraps
// github.com/modelcontextprotocol/go-sdk/mcp), this transport is hand-rolled
// directly over bufio.Scanner/os.Stdin/os.Stdout: the initialize handshake
// needs an exact -32602 error payload shape with a worked example in data,
// and search_regex/search_semantic stream NDJSON result lines ahead of their
// closing JSON-RPC response, neither of which a general-purpose SDK exposes
// control over.
package mcpserver

import (
	"encoding/json"
	"fmt"
)

// protocolVersion is the MCP wire version this server implements.
const protocolVersion = "2024-11-05"

// Request is one line of the line-delimited JSON-RPC request stream.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is one line of the line-delimited JSON-RPC response stream.
// Streaming tools emit bare NDJSON result objects ahead of the Response
// that finally closes out their request id; non-streaming tools emit only
// a single Response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("mcp error %d: %s", e.Code, e.Message)
}

func parseRequest(line []byte) (*Request, *RPCError) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, &RPCError{Code: CodeParseError, Message: "invalid JSON: " + err.Error()}
	}
	if req.Method == "" {
		return nil, &RPCError{Code: CodeInvalidRequest, Message: "request has no method"}
	}
	return &req, nil
}

func resultResponse(id json.RawMessage, result any) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id json.RawMessage, rerr *RPCError) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: rerr}
}
