// Package service hosts the MCP debug bridge server. It assembles the tool
// and resource registrations from the domain package around a debug client
// and serves them over stdio or HTTP.
package service
