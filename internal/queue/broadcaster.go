package queue

import "github.com/waitline/queuecoord/internal/channel/realtime"

// RealtimeBroadcaster is the subset of realtime.Hub the orchestrator
// drives directly for operator-facing events, per §2 composition note
// "calls E directly for operator-facing real-time events".
type RealtimeBroadcaster interface {
	Send(userID string, frame realtime.Frame) bool
	Broadcast(frame realtime.Frame)
	BroadcastToVenueOwners(venueID string, frame realtime.Frame)
}
