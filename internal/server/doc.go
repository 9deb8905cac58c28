// Package server implements the WebSocket transport for session streams
// and the HTTP API for monitoring, management, and raw event ingest.
package server
