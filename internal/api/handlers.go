// Package api exposes HTTP handlers for the bikeroutes service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/bikeroutes/internal/domain"
)

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes wires endpoints to the mux. Paths keep the Portuguese names
// the mobile clients already depend on.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", root)
	mux.HandleFunc("POST /usuarios", h.upsertUser)
	mux.HandleFunc("GET /usuarios/email/{email}", h.userByEmail)
	mux.HandleFunc("POST /login", h.login)
	mux.HandleFunc("POST /rotas", h.submitRoute)
	mux.HandleFunc("GET /rotas/{usuario_id}", h.routesByUser)
	mux.HandleFunc("GET /coordenadas/{rota_id}", h.coordinatesByRoute)
	mux.HandleFunc("POST /limpar-banco", h.clearDatabase)
	mux.HandleFunc("GET /healthz", healthz)
}

func root(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte("API BikeRoutes Online"))
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) upsertUser(w http.ResponseWriter, r *http.Request) {
	var req UpsertUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.service.UpsertUser(r.Context(), domain.User{
		CPF:            req.CPF,
		Name:           req.Nome,
		Phone:          req.Telefone,
		Sex:            req.Sexo,
		Email:          req.Email,
		BirthDate:      req.DataNascimento,
		Password:       req.Senha,
		DeviceMaker:    req.Fabricante,
		DeviceModel:    req.Modelo,
		DeviceSerial:   req.Serial,
		DeviceFirmware: req.Versao,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toUserView(*user))
}

func (h *Handler) userByEmail(w http.ResponseWriter, r *http.Request) {
	email := r.PathValue("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "missing email")
		return
	}

	user, err := h.service.FindUserByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toUserView(*user))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "unable to parse body")
		return
	}

	user, err := h.service.Login(r.Context(), req.CPF, req.Senha)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toUserView(*user))
}

func (h *Handler) submitRoute(w http.ResponseWriter, r *http.Request) {
	var req SubmitRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	route, err := h.service.SubmitRoute(r.Context(), domain.SubmitRouteInput{
		UserID:       req.UsuarioID,
		ActivityType: req.Tipo,
		Duration:     req.Tempo,
		Coordinates:  req.Coordenadas,
	})
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			writeError(w, http.StatusBadRequest, "user not found in database")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, SubmitRouteResponse{Rota: toRouteView(*route)})
}

func (h *Handler) routesByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.PathValue("usuario_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid usuario_id")
		return
	}

	routes, err := h.service.ListRoutesByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]RouteView, 0, len(routes))
	for _, route := range routes {
		views = append(views, toRouteView(route))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) coordinatesByRoute(w http.ResponseWriter, r *http.Request) {
	routeID, err := strconv.ParseInt(r.PathValue("rota_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rota_id")
		return
	}

	coords, err := h.service.ListCoordinatesByRoute(r.Context(), routeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	views := make([]CoordinateView, 0, len(coords))
	for _, coord := range coords {
		views = append(views, toCoordinateView(coord))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) clearDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearAll(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"message": "database cleared",
	})
}

// UpsertUserRequest is the payload for POST /usuarios.
type UpsertUserRequest struct {
	CPF            string `json:"cpf"`
	Nome           string `json:"nome"`
	Telefone       string `json:"telefone"`
	Sexo           string `json:"sexo"`
	Email          string `json:"email"`
	DataNascimento string `json:"dataNascimento"`
	Senha          string `json:"senha"`
	Fabricante     string `json:"fabricante"`
	Modelo         string `json:"modelo"`
	Serial         string `json:"serial"`
	Versao         string `json:"versao"`
}

// Validate ensures request correctness. Email is the upsert key and is the
// only mandatory field.
func (r UpsertUserRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return errors.New("email is required")
	}
	return nil
}

// LoginRequest is the payload for POST /login.
type LoginRequest struct {
	CPF   string `json:"cpf"`
	Senha string `json:"senha"`
}

// SubmitRouteRequest is the payload for POST /rotas. Coordenadas stays raw:
// the element shape is loosely defined and resolved sample by sample during
// ingestion, and a non-array value just means zero coordinates.
type SubmitRouteRequest struct {
	UsuarioID   int64           `json:"usuario_id"`
	Tipo        string          `json:"tipo"`
	Tempo       int64           `json:"tempo"`
	Coordenadas json.RawMessage `json:"coordenadas"`
}

// Validate ensures request correctness.
func (r SubmitRouteRequest) Validate() error {
	if r.UsuarioID <= 0 {
		return errors.New("usuario_id is required")
	}
	return nil
}

// SubmitRouteResponse wraps the created route the way the original API did.
type SubmitRouteResponse struct {
	Rota RouteView `json:"rota"`
}

// UserView mirrors the usuarios row.
type UserView struct {
	ID             int64  `json:"id"`
	CPF            string `json:"cpf"`
	Nome           string `json:"nome"`
	Telefone       string `json:"telefone"`
	Sexo           string `json:"sexo"`
	Email          string `json:"email"`
	DataNascimento string `json:"data_nascimento"`
	Senha          string `json:"senha"`
	Fabricante     string `json:"fabricante"`
	Modelo         string `json:"modelo"`
	Serial         string `json:"serial"`
	Versao         string `json:"versao"`
}

// RouteView mirrors the rotas row.
type RouteView struct {
	ID        int64     `json:"id"`
	UsuarioID int64     `json:"usuario_id"`
	Tipo      string    `json:"tipo"`
	Tempo     int64     `json:"tempo"`
	CriadoEm  time.Time `json:"criado_em"`
}

// CoordinateView mirrors the coordenadas row.
type CoordinateView struct {
	ID        int64     `json:"id"`
	RotaID    int64     `json:"rota_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

func toUserView(user domain.User) UserView {
	return UserView{
		ID:             user.ID,
		CPF:            user.CPF,
		Nome:           user.Name,
		Telefone:       user.Phone,
		Sexo:           user.Sex,
		Email:          user.Email,
		DataNascimento: user.BirthDate,
		Senha:          user.Password,
		Fabricante:     user.DeviceMaker,
		Modelo:         user.DeviceModel,
		Serial:         user.DeviceSerial,
		Versao:         user.DeviceFirmware,
	}
}

func toRouteView(route domain.Route) RouteView {
	return RouteView{
		ID:        route.ID,
		UsuarioID: route.UserID,
		Tipo:      route.ActivityType,
		Tempo:     route.Duration,
		CriadoEm:  route.CreatedAt,
	}
}

func toCoordinateView(coord domain.Coordinate) CoordinateView {
	return CoordinateView{
		ID:        coord.ID,
		RotaID:    coord.RouteID,
		Latitude:  coord.Latitude,
		Longitude: coord.Longitude,
		Timestamp: coord.Timestamp,
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
