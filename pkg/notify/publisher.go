package notify

import (
	"context"

	"ratingsync/pkg/player"
)

// MatchActivity is emitted when a tracked player's match count grows between
// two observations. Followers lists who follows the player at emit time.
type MatchActivity struct {
	PlayerID  player.ID   `json:"player_id,string"`
	Name      string      `json:"name"`
	Previous  uint64      `json:"previous"`
	Current   uint64      `json:"current"`
	Delta     uint64      `json:"delta"`
	Followers []player.ID `json:"followers"`
	SyncedAt  int64       `json:"synced_at"`
}

// Publisher delivers match activity events to a downstream channel
type Publisher interface {
	// Publish sends all events; a nil return means every event was accepted
	Publish(ctx context.Context, events []MatchActivity) error

	// Close gracefully shuts down the publisher
	Close() error
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, []MatchActivity) error { return nil }
func (NopPublisher) Close() error                                   { return nil }
