package realtime

import (
	"time"

	"github.com/coder/websocket"
)

const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 64 << 10 // 64 KiB

	defaultSendQueueSize = 256
	minSendQueueSize     = 32

	defaultWriteTimeout = 5 * time.Second
	defaultReadIdle     = 2 * time.Minute
	closeGrace          = 1 * time.Second

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second
	maxPingFailures   = 3

	// Per-connection token bucket: burst of rateLimitEvents refilled over rateLimitWindow.
	rateLimitEvents = 120
	rateLimitWindow = 10 * time.Second

	defaultAllowedOrigins = "http://localhost,http://127.0.0.1"
)

// StatusReplaced closes a connection whose identity connected again elsewhere.
const StatusReplaced websocket.StatusCode = 4001
