// Package postgres provides pgx-backed persistence for users, routes, and
// coordinates, plus the transactional outbox rows for route events.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/bikeroutes/internal/domain"
	"example.com/bikeroutes/internal/events"
)

const userColumns = `id, cpf, nome, telefone, sexo, email, data_nascimento, senha, fabricante, modelo, serial, versao`

// Repository implements domain.Store on top of a pgx connection pool.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UpsertUser inserts the user or overwrites the row that owns the email.
func (r *Repository) UpsertUser(ctx context.Context, user domain.User) (*domain.User, error) {
	query := `INSERT INTO usuarios (cpf, nome, telefone, sexo, email, data_nascimento, senha, fabricante, modelo, serial, versao)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        ON CONFLICT (email) DO UPDATE SET
            cpf = EXCLUDED.cpf,
            nome = EXCLUDED.nome,
            telefone = EXCLUDED.telefone,
            sexo = EXCLUDED.sexo,
            data_nascimento = EXCLUDED.data_nascimento,
            senha = EXCLUDED.senha,
            fabricante = EXCLUDED.fabricante,
            modelo = EXCLUDED.modelo,
            serial = EXCLUDED.serial,
            versao = EXCLUDED.versao
        RETURNING ` + userColumns

	row := r.pool.QueryRow(ctx, query,
		user.CPF,
		user.Name,
		user.Phone,
		user.Sex,
		user.Email,
		user.BirthDate,
		user.Password,
		user.DeviceMaker,
		user.DeviceModel,
		user.DeviceSerial,
		user.DeviceFirmware,
	)
	return scanUser(row)
}

// UserExists reports whether a user row with the given id exists.
func (r *Repository) UserExists(ctx context.Context, userID int64) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM usuarios WHERE id = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// FindUserByEmail returns the user registered under email, or nil.
func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM usuarios WHERE email = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

// FindUserByCredentials returns the user matching the exact (cpf, senha)
// pair, or nil when no row matches.
func (r *Repository) FindUserByCredentials(ctx context.Context, cpf, password string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM usuarios WHERE cpf = $1 AND senha = $2`

	user, err := scanUser(r.pool.QueryRow(ctx, query, cpf, password))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return user, err
}

// CreateRoute inserts one route row and records the route.created outbox
// event inside the same transaction.
func (r *Repository) CreateRoute(ctx context.Context, route domain.Route) (*domain.Route, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const insertRoute = `INSERT INTO rotas (usuario_id, tipo, tempo) VALUES ($1,$2,$3) RETURNING id, criado_em`

	created := route
	err = tx.QueryRow(ctx, insertRoute, route.UserID, route.ActivityType, route.Duration).Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err = insertOutbox(ctx, tx, created); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &created, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, route domain.Route) error {
	payload, err := json.Marshal(events.RouteCreated{
		EventID:      uuid.NewString(),
		RouteID:      route.ID,
		UserID:       route.UserID,
		ActivityType: route.ActivityType,
		Duration:     route.Duration,
		OccurredAt:   route.CreatedAt,
	})
	if err != nil {
		return err
	}

	const stmt = `INSERT INTO outbox (aggregate_type, aggregate_id, event_type, topic, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`

	_, err = tx.Exec(ctx, stmt,
		"route",
		strconv.FormatInt(route.ID, 10),
		"route.created",
		"route_events",
		strconv.FormatInt(route.UserID, 10),
		payload,
		fmt.Sprintf("%d:route.created", route.ID),
	)
	return err
}

// InsertCoordinate persists one normalized coordinate sample.
func (r *Repository) InsertCoordinate(ctx context.Context, coord domain.Coordinate) error {
	const stmt = `INSERT INTO coordenadas (rota_id, latitude, longitude, "timestamp") VALUES ($1,$2,$3,$4)`

	_, err := r.pool.Exec(ctx, stmt, coord.RouteID, coord.Latitude, coord.Longitude, coord.Timestamp)
	return err
}

// ListRoutesByUser returns every route owned by the user.
func (r *Repository) ListRoutesByUser(ctx context.Context, userID int64) ([]domain.Route, error) {
	const query = `SELECT id, usuario_id, tipo, tempo, criado_em FROM rotas WHERE usuario_id = $1`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	routes := make([]domain.Route, 0)
	for rows.Next() {
		var route domain.Route
		if err := rows.Scan(&route.ID, &route.UserID, &route.ActivityType, &route.Duration, &route.CreatedAt); err != nil {
			return nil, err
		}
		routes = append(routes, route)
	}
	return routes, rows.Err()
}

// ListCoordinatesByRoute returns every coordinate of the route in storage order.
func (r *Repository) ListCoordinatesByRoute(ctx context.Context, routeID int64) ([]domain.Coordinate, error) {
	const query = `SELECT id, rota_id, latitude, longitude, "timestamp" FROM coordenadas WHERE rota_id = $1 ORDER BY id`

	rows, err := r.pool.Query(ctx, query, routeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	coords := make([]domain.Coordinate, 0)
	for rows.Next() {
		var coord domain.Coordinate
		if err := rows.Scan(&coord.ID, &coord.RouteID, &coord.Latitude, &coord.Longitude, &coord.Timestamp); err != nil {
			return nil, err
		}
		coords = append(coords, coord)
	}
	return coords, rows.Err()
}

// ClearAll deletes every row from every table, children before parents.
func (r *Repository) ClearAll(ctx context.Context) error {
	statements := []string{
		`DELETE FROM coordenadas`,
		`DELETE FROM rotas`,
		`DELETE FROM outbox`,
		`DELETE FROM usuarios`,
	}
	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.CPF,
		&user.Name,
		&user.Phone,
		&user.Sex,
		&user.Email,
		&user.BirthDate,
		&user.Password,
		&user.DeviceMaker,
		&user.DeviceModel,
		&user.DeviceSerial,
		&user.DeviceFirmware,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
