// Package events defines the payloads published to Kafka by the outbox.
package events

import "time"

// RouteCreated is emitted once per successfully ingested route.
type RouteCreated struct {
	EventID      string    `json:"event_id"`
	RouteID      int64     `json:"rota_id"`
	UserID       int64     `json:"usuario_id"`
	ActivityType string    `json:"tipo"`
	Duration     int64     `json:"tempo"`
	OccurredAt   time.Time `json:"occurred_at"`
}
