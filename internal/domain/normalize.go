package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Largest epoch offset (in milliseconds) that still maps to a representable
// calendar instant; matches the ECMAScript Date range the mobile clients
// inherit.
const maxEpochMillis = 8.64e15

// RawCoordinate mirrors one element of the coordenadas array as clients send
// it. The direct fields are kept as raw JSON so that an absent field can be
// told apart from an explicit null: only an absent latitude/longitude falls
// back to the nested coords object.
type RawCoordinate struct {
	Latitude  json.RawMessage `json:"latitude"`
	Longitude json.RawMessage `json:"longitude"`
	Coords    *NestedCoords   `json:"coords"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// NestedCoords is the fallback shape some clients produce when they forward
// the browser geolocation object verbatim.
type NestedCoords struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// DropReason explains why a sample was rejected by Normalize. The empty
// value means the sample is usable.
type DropReason string

const (
	DropNone             DropReason = ""
	DropMissingLatitude  DropReason = "missing_latitude"
	DropMissingLongitude DropReason = "missing_longitude"
	DropMissingTimestamp DropReason = "missing_timestamp"
	DropBadTimestamp     DropReason = "bad_timestamp"
)

// NormalizedCoordinate is the validated triple ready to be persisted.
type NormalizedCoordinate struct {
	Latitude  float64
	Longitude float64
	Timestamp time.Time
}

// Normalize extracts latitude, longitude, and the capture instant from one
// raw sample. The timestamp arrives as epoch milliseconds and is converted
// to an absolute UTC instant. A non-empty DropReason means the sample must
// be skipped; a malformed timestamp is never an error, just a drop.
func Normalize(raw RawCoordinate) (NormalizedCoordinate, DropReason) {
	lat := directOr(raw.Latitude, nestedLatitude(raw.Coords))
	if lat == nil {
		return NormalizedCoordinate{}, DropMissingLatitude
	}

	lng := directOr(raw.Longitude, nestedLongitude(raw.Coords))
	if lng == nil {
		return NormalizedCoordinate{}, DropMissingLongitude
	}

	ts, reason := parseEpochMillis(raw.Timestamp)
	if reason != DropNone {
		return NormalizedCoordinate{}, reason
	}

	return NormalizedCoordinate{Latitude: *lat, Longitude: *lng, Timestamp: ts}, DropNone
}

func nestedLatitude(c *NestedCoords) *float64 {
	if c == nil {
		return nil
	}
	return c.Latitude
}

func nestedLongitude(c *NestedCoords) *float64 {
	if c == nil {
		return nil
	}
	return c.Longitude
}

// directOr resolves the direct-vs-nested precedence: a present direct field
// wins even when it holds null, only an absent field uses the fallback.
func directOr(raw json.RawMessage, fallback *float64) *float64 {
	if len(raw) == 0 {
		return fallback
	}
	var v *float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// parseEpochMillis converts an optional epoch-milliseconds value into a UTC
// instant. Numeric strings are tolerated; anything unconvertible counts as
// "no timestamp" for that sample.
func parseEpochMillis(raw json.RawMessage) (time.Time, DropReason) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, DropMissingTimestamp
	}

	var millis float64
	if err := json.Unmarshal(raw, &millis); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, DropBadTimestamp
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return time.Time{}, DropBadTimestamp
		}
		millis = parsed
	}

	if math.IsNaN(millis) || math.Abs(millis) > maxEpochMillis {
		return time.Time{}, DropBadTimestamp
	}

	return time.UnixMilli(int64(millis)).UTC(), DropNone
}
