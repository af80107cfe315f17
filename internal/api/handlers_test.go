package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/bikeroutes/internal/domain"
	"example.com/bikeroutes/internal/logging"
)

type stubStore struct {
	users  map[int64]domain.User
	routes []domain.Route
	coords []domain.Coordinate
}

func newStubStore(users ...domain.User) *stubStore {
	s := &stubStore{users: make(map[int64]domain.User)}
	for _, user := range users {
		s.users[user.ID] = user
	}
	return s
}

func (s *stubStore) UpsertUser(ctx context.Context, user domain.User) (*domain.User, error) {
	user.ID = int64(len(s.users) + 1)
	s.users[user.ID] = user
	return &user, nil
}

func (s *stubStore) UserExists(ctx context.Context, userID int64) (bool, error) {
	_, ok := s.users[userID]
	return ok, nil
}

func (s *stubStore) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	for _, user := range s.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, nil
}

func (s *stubStore) FindUserByCredentials(ctx context.Context, cpf, password string) (*domain.User, error) {
	for _, user := range s.users {
		if user.CPF == cpf && user.Password == password {
			u := user
			return &u, nil
		}
	}
	return nil, nil
}

func (s *stubStore) CreateRoute(ctx context.Context, route domain.Route) (*domain.Route, error) {
	route.ID = int64(len(s.routes) + 1)
	route.CreatedAt = time.Now().UTC()
	s.routes = append(s.routes, route)
	return &route, nil
}

func (s *stubStore) InsertCoordinate(ctx context.Context, coord domain.Coordinate) error {
	coord.ID = int64(len(s.coords) + 1)
	s.coords = append(s.coords, coord)
	return nil
}

func (s *stubStore) ListRoutesByUser(ctx context.Context, userID int64) ([]domain.Route, error) {
	out := make([]domain.Route, 0)
	for _, route := range s.routes {
		if route.UserID == userID {
			out = append(out, route)
		}
	}
	return out, nil
}

func (s *stubStore) ListCoordinatesByRoute(ctx context.Context, routeID int64) ([]domain.Coordinate, error) {
	out := make([]domain.Coordinate, 0)
	for _, coord := range s.coords {
		if coord.RouteID == routeID {
			out = append(out, coord)
		}
	}
	return out, nil
}

func (s *stubStore) ClearAll(ctx context.Context) error {
	s.users = make(map[int64]domain.User)
	s.routes = nil
	s.coords = nil
	return nil
}

func newTestMux(store domain.Store) *http.ServeMux {
	service := domain.NewService(store, logging.NewDiscardLogger())
	mux := http.NewServeMux()
	NewHandler(service).RegisterRoutes(mux)
	return mux
}

func TestSubmitRoutePersistsUsableSamples(t *testing.T) {
	store := newStubStore(domain.User{ID: 7, Email: "ana@example.com"})
	mux := newTestMux(store)

	body := `{"usuario_id":7,"tipo":"road","tempo":1800,"coordenadas":[
		{"latitude":10,"longitude":20,"timestamp":1700000000000},
		{"latitude":null,"longitude":5,"timestamp":1700000001000}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/rotas", strings.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp SubmitRouteResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, int64(7), resp.Rota.UsuarioID)
	require.Equal(t, "road", resp.Rota.Tipo)
	require.Equal(t, int64(1800), resp.Rota.Tempo)

	require.Len(t, store.coords, 1)
	require.Equal(t, 10.0, store.coords[0].Latitude)
	require.Equal(t, resp.Rota.ID, store.coords[0].RouteID)
}

func TestSubmitRouteUnknownUser(t *testing.T) {
	store := newStubStore()
	mux := newTestMux(store)

	body := `{"usuario_id":999,"tipo":"road","tempo":1800,"coordenadas":[]}`
	req := httptest.NewRequest(http.MethodPost, "/rotas", strings.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Contains(t, resp["error"], "user not found")

	require.Empty(t, store.routes)
	require.Empty(t, store.coords)
}

func TestSubmitRouteRejectsBadBody(t *testing.T) {
	mux := newTestMux(newStubStore())

	req := httptest.NewRequest(http.MethodPost, "/rotas", strings.NewReader(`{`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpsertUserRequiresEmail(t *testing.T) {
	mux := newTestMux(newStubStore())

	req := httptest.NewRequest(http.MethodPost, "/usuarios", strings.NewReader(`{"nome":"Ana"}`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpsertUserReturnsRow(t *testing.T) {
	mux := newTestMux(newStubStore())

	body := `{"cpf":"123","nome":"Ana","email":"ana@example.com","fabricante":"Garmin","modelo":"Edge 530"}`
	req := httptest.NewRequest(http.MethodPost, "/usuarios", strings.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var view UserView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	require.NotZero(t, view.ID)
	require.Equal(t, "ana@example.com", view.Email)
	require.Equal(t, "Garmin", view.Fabricante)
}

func TestUserByEmailNotFound(t *testing.T) {
	mux := newTestMux(newStubStore())

	req := httptest.NewRequest(http.MethodGet, "/usuarios/email/nobody@example.com", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	store := newStubStore(domain.User{ID: 1, CPF: "123", Password: "segredo"})
	mux := newTestMux(store)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"cpf":"123","senha":"errado"}`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRoutesByUserInvalidID(t *testing.T) {
	mux := newTestMux(newStubStore())

	req := httptest.NewRequest(http.MethodGet, "/rotas/abc", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListRoutesAndCoordinates(t *testing.T) {
	store := newStubStore(domain.User{ID: 7, Email: "ana@example.com"})
	mux := newTestMux(store)

	body := `{"usuario_id":7,"tipo":"mtb","tempo":900,"coordenadas":[
		{"latitude":1,"longitude":1,"timestamp":1700000001000},
		{"latitude":2,"longitude":2,"timestamp":1700000002000}
	]}`
	req := httptest.NewRequest(http.MethodPost, "/rotas", strings.NewReader(body))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	req = httptest.NewRequest(http.MethodGet, "/rotas/7", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var routes []RouteView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &routes))
	require.Len(t, routes, 1)

	req = httptest.NewRequest(http.MethodGet, "/coordenadas/1", nil)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var coords []CoordinateView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &coords))
	require.Len(t, coords, 2)
	require.Equal(t, 1.0, coords[0].Latitude)
	require.Equal(t, 2.0, coords[1].Latitude)
}

func TestClearDatabase(t *testing.T) {
	store := newStubStore(domain.User{ID: 7, Email: "ana@example.com"})
	mux := newTestMux(store)

	req := httptest.NewRequest(http.MethodPost, "/limpar-banco", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, true, resp["ok"])
	require.Empty(t, store.users)
}
