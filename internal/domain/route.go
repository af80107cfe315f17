package domain

import "time"

// Route is one recorded cycling activity. It cannot exist without a valid,
// pre-existing User; the ingestion service checks that before the row is
// created.
type Route struct {
	ID           int64
	UserID       int64
	ActivityType string
	Duration     int64
	CreatedAt    time.Time
}

// Coordinate is one GPS sample belonging to a Route. Rows are only written
// for samples that survived normalization, in the order they were received.
type Coordinate struct {
	ID        int64
	RouteID   int64
	Latitude  float64
	Longitude float64
	Timestamp time.Time
}
