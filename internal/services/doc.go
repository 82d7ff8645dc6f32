// Package services wires configuration into the running complyd object
// graph: embedder, vector stores, document index, generator, memory,
// profile and the workflow engine.
//
// Build returns a Registry whose accessors hand the shared instances to
// the HTTP server, the MCP server and the CLI. Close releases everything
// Build opened, in reverse order.
package services
