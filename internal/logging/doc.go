// Package logging provides structured, rotating file-based logging shared
// by every component, plus an MCP stdio mode that keeps stderr silent
// while the JSON-RPC transport owns it exclusively.
package logging
