package redis

import "fmt"

// ChannelBalanceUpdates is the well-known pub/sub topic shared by the
// transaction service and every gateway instance. Messages are JSON-encoded
// balance events; there are no consumer groups or offsets, every subscribed
// instance receives every message.
const ChannelBalanceUpdates = "balance:updates"

// BalanceKey returns the cache key holding a user's last known balance.
// The value is a plain numeric string written by the transaction service.
func BalanceKey(userID string) string {
	return fmt.Sprintf("balance:user:%s", userID)
}

// PresenceKey returns the set key tracking a user's live connection ids,
// used by the chat and notification subsystems for online checks.
func PresenceKey(userID string) string {
	return fmt.Sprintf("presence:user:%s", userID)
}

// RoomMembersKey returns the set key mirroring a room's membership for
// cross-service presence queries.
func RoomMembersKey(room string) string {
	return fmt.Sprintf("room:%s:members", room)
}

// PendingNotificationsKey returns the list key queueing notifications for a
// user while they are offline.
func PendingNotificationsKey(userID string) string {
	return fmt.Sprintf("notifications:pending:%s", userID)
}
