// Package server exposes the pipeline over HTTP and WebSocket and presents its output to subscribers.
package server

import "time"

// Server configuration constants
const (
	// Per-connection sliding window for inbound websocket messages.
	RateLimitWindow          = time.Second
	DefaultRateLimitMessages = 10

	// Outbound messages buffered per subscriber before new ones are dropped.
	SendBuffer = 32

	// Upper bound for one websocket write.
	WriteTimeout = 5 * time.Second

	// History rows returned when the request does not say.
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 500

	// Request body cap for capture requests.
	MaxRequestBody = 64 << 10
)
