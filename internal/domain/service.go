// Package domain defines the business logic for the bikeroutes service.
package domain

import (
	"context"
	"encoding/json"
	"errors"

	"example.com/bikeroutes/internal/logging"
	"example.com/bikeroutes/internal/observability"
)

var (
	// ErrUserNotFound is returned when a referenced user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is returned when a login lookup matches no user.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Store captures persistence operations against the shared PostgreSQL
// backend. It is injected so tests can substitute an in-memory double.
type Store interface {
	UpsertUser(ctx context.Context, user User) (*User, error)
	UserExists(ctx context.Context, userID int64) (bool, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByCredentials(ctx context.Context, cpf, password string) (*User, error)
	CreateRoute(ctx context.Context, route Route) (*Route, error)
	InsertCoordinate(ctx context.Context, coord Coordinate) error
	ListRoutesByUser(ctx context.Context, userID int64) ([]Route, error)
	ListCoordinatesByRoute(ctx context.Context, routeID int64) ([]Coordinate, error)
	ClearAll(ctx context.Context) error
}

// Service orchestrates route ingestion and the surrounding user workflows.
type Service struct {
	store Store
	log   logging.Logger
}

// NewService constructs a Service.
func NewService(store Store, log logging.Logger) *Service {
	return &Service{store: store, log: log}
}

// SubmitRouteInput captures the payload from the API layer. Coordinates is
// kept as raw JSON because the element shape is only loosely defined.
type SubmitRouteInput struct {
	UserID       int64
	ActivityType string
	Duration     int64
	Coordinates  json.RawMessage
}

// SubmitRoute persists one route and its usable coordinate samples.
//
// The user-existence check runs before any write, so no partial route is
// ever created for an unknown user. The route insert and each coordinate
// insert are issued sequentially as independent statements: a storage fault
// mid-batch leaves the route and the already-written coordinates in place.
func (s *Service) SubmitRoute(ctx context.Context, input SubmitRouteInput) (*Route, error) {
	exists, err := s.store.UserExists(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if !exists {
		s.log.Warn(ctx, "route rejected, user not found", "usuario_id", input.UserID)
		return nil, ErrUserNotFound
	}

	route, err := s.store.CreateRoute(ctx, Route{
		UserID:       input.UserID,
		ActivityType: input.ActivityType,
		Duration:     input.Duration,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "route persisted", "rota_id", route.ID, "usuario_id", route.UserID, "tipo", route.ActivityType)
	observability.RecordRouteCreated(route.CreatedAt)

	for i, sample := range decodeSamples(input.Coordinates) {
		var raw RawCoordinate
		if err := json.Unmarshal(sample, &raw); err != nil {
			s.log.Warn(ctx, "coordinate dropped", "rota_id", route.ID, "index", i, "reason", "malformed_sample")
			observability.RecordCoordinateDropped("malformed_sample")
			continue
		}

		norm, reason := Normalize(raw)
		if reason != DropNone {
			s.log.Warn(ctx, "coordinate dropped", "rota_id", route.ID, "index", i, "reason", string(reason))
			observability.RecordCoordinateDropped(string(reason))
			continue
		}

		coord := Coordinate{
			RouteID:   route.ID,
			Latitude:  norm.Latitude,
			Longitude: norm.Longitude,
			Timestamp: norm.Timestamp,
		}
		if err := s.store.InsertCoordinate(ctx, coord); err != nil {
			return nil, err
		}
		s.log.Info(ctx, "coordinate persisted", "rota_id", route.ID, "index", i)
		observability.RecordCoordinateAccepted()
	}

	return route, nil
}

// decodeSamples splits the raw coordinate payload into per-sample chunks.
// Anything that is not a JSON array yields no samples; that is not an error,
// the route simply ends up with zero coordinates.
func decodeSamples(raw json.RawMessage) []json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var samples []json.RawMessage
	if err := json.Unmarshal(raw, &samples); err != nil {
		return nil
	}
	return samples
}

// UpsertUser inserts the user or, when the email is already registered,
// overwrites every other field of that row.
func (s *Service) UpsertUser(ctx context.Context, user User) (*User, error) {
	saved, err := s.store.UpsertUser(ctx, user)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "user saved", "usuario_id", saved.ID, "email", saved.Email)
	return saved, nil
}

// FindUserByEmail returns the single user registered under email.
func (s *Service) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	user, err := s.store.FindUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// Login looks a user up by the exact (cpf, password) pair.
func (s *Service) Login(ctx context.Context, cpf, password string) (*User, error) {
	user, err := s.store.FindUserByCredentials(ctx, cpf, password)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// ListRoutesByUser returns every route recorded by the user.
func (s *Service) ListRoutesByUser(ctx context.Context, userID int64) ([]Route, error) {
	return s.store.ListRoutesByUser(ctx, userID)
}

// ListCoordinatesByRoute returns every coordinate of the route.
func (s *Service) ListCoordinatesByRoute(ctx context.Context, routeID int64) ([]Coordinate, error) {
	return s.store.ListCoordinatesByRoute(ctx, routeID)
}

// ClearAll wipes every table, children before parents. Destructive, meant
// for test and development environments.
func (s *Service) ClearAll(ctx context.Context) error {
	if err := s.store.ClearAll(ctx); err != nil {
		return err
	}
	s.log.Warn(ctx, "all data cleared")
	return nil
}
