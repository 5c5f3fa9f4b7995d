// Package domain declares the MCP tool and resource surface of the debug
// bridge. Each tool pairs a schema declaration (XxxTool) with a handler
// factory (XxxHandler) that validates input, calls the debug client, and
// returns both a text rendering and a structured payload.
package domain
