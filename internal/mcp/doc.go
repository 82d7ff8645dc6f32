// Package mcp exposes the compliance workflow and the memory subsystem as
// MCP tools over the go-sdk server.
//
// Tools:
//
//	ask            run a query through the workflow
//	memory_search  rank long-term memories for a query
//	memory_stats   counts for every memory layer
//	profile_show   the learned user profile
package mcp
