// Package broadcast defines the port for pushing real-time progress events
// to connected observers.
package broadcast

import "context"

// Broadcaster sends a typed event to all connected observers.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}
