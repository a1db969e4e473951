// Package logging provides file-based structured logging with rotation for casesearch.
// Logs are JSON lines written to ~/.casesearch/logs/ and optionally teed to stderr.
//
// The MCP server uses stdout for JSON-RPC, so serve mode logs to the file only.
package logging
