package mcpserver

import (
	"context"
	"errors"

	"github.com/chunkhound-go/chunkhound/internal/errs"
)

// Standard JSON-RPC 2.0 error codes, plus the range MCP reserves for
// server-defined errors.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// initializeExample is the worked example attached to the -32602 error
// data payload when an initialize call is missing a required field, so
// the caller sees a working message rather than just a field name.
var initializeExample = map[string]any{
	"jsonrpc": "2.0",
	"id":      1,
	"method":  "initialize",
	"params": map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "example-client",
			"version": "0.1.0",
		},
	},
}

// newInitializeParamsError builds a -32602 error carrying the worked example,
// for the initialize validation path specifically.
func newInitializeParamsError(missingField string) *RPCError {
	return &RPCError{
		Code:    CodeInvalidParams,
		Message: "initialize params missing required field: " + missingField,
		Data: map[string]any{
			"missing_field": missingField,
			"example":       initializeExample,
		},
	}
}

// mapError converts an internal error into a JSON-RPC error, mirroring the
// teacher MCP package's MapError: ValidationError becomes -32602 with its
// own message; embedding and coordination errors become -32603 carrying
// their message behind a short prefix; a canceled or timed-out context
// becomes -32603 "request canceled"; anything else becomes -32603
// "internal error".
func mapError(err error) *RPCError {
	if err == nil {
		return nil
	}
	var rerr *RPCError
	if errors.As(err, &rerr) {
		return rerr
	}

	var e *errs.Error
	if errors.As(err, &e) {
		switch e.Kind {
		case errs.KindValidation:
			return &RPCError{Code: CodeInvalidParams, Message: e.Message}
		case errs.KindEmbedding:
			return &RPCError{Code: CodeInternalError, Message: "embedding provider unavailable: " + e.Message}
		case errs.KindCoordination:
			return &RPCError{Code: CodeInternalError, Message: "database temporarily unavailable: " + e.Message}
		default:
			return &RPCError{Code: CodeInternalError, Message: "internal error"}
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &RPCError{Code: CodeInternalError, Message: "request canceled"}
	}

	return &RPCError{Code: CodeInternalError, Message: "internal error"}
}
