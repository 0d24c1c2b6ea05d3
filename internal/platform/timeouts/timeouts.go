// Package timeouts defines shared timeout constants for the support process.
package timeouts

import "time"

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// FrameWrite caps a single outbound WebSocket frame write.
const FrameWrite = 10 * time.Second
