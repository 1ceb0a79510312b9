package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"schedboard/internal/coordinator"
	"schedboard/pkg/interfaces"
	"schedboard/pkg/types"
)

// Authenticator is what the login endpoint needs from the credential issuer.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (string, *types.User, error)
}

// ConnectionStats decouples the health endpoint from the registry
// implementation.
type ConnectionStats interface {
	Stats() map[string]int
}

// HealthChecker decouples the health endpoint from the store implementation.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server is the REST surface: pure HTTP handling and JSON serialization over
// the injected components. Read endpoints go straight to the store; every
// mutation goes through the coordinator so commits and broadcasts stay
// paired.
type Server struct {
	authenticator Authenticator
	verifier      interfaces.TokenVerifier
	store         interfaces.Store
	coordinator   *coordinator.Coordinator
	connections   ConnectionStats
	health        HealthChecker
	limiter       *loginLimiter
	router        chi.Router
}

// onlineWindow is how far back a login still counts as "online".
const onlineWindow = 30 * time.Minute

// loginAttemptsPerMinute bounds guesses against a single username.
const loginAttemptsPerMinute = 10

// NewServer creates the REST server and mounts all routes.
func NewServer(
	authenticator Authenticator,
	verifier interfaces.TokenVerifier,
	store interfaces.Store,
	coord *coordinator.Coordinator,
	connections ConnectionStats,
	health HealthChecker,
) *Server {
	s := &Server{
		authenticator: authenticator,
		verifier:      verifier,
		store:         store,
		coordinator:   coord,
		connections:   connections,
		health:        health,
		limiter:       newLoginLimiter(loginAttemptsPerMinute),
	}

	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(corsMiddleware, jsonMiddleware)

	r.Get("/health", s.healthCheck)

	r.Route("/api", func(r chi.Router) {
		// Public: login is the only unauthenticated operation.
		r.Post("/auth/login", s.login)

		// Authenticated reads.
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Get("/auth/user/info", s.userInfo)
			r.Get("/schedules", s.listSchedules)
			r.Get("/schedules/month", s.listScheduleDates)
			r.Get("/schedules/{id}", s.getSchedule)
			r.Get("/users/online", s.onlineUsers)

			// Privileged mutations and account management.
			r.Group(func(r chi.Router) {
				r.Use(s.requirePrivileged)

				r.Post("/schedules", s.createSchedule)
				r.Put("/schedules/{id}", s.updateSchedule)
				r.Delete("/schedules/{id}", s.deleteSchedule)

				r.Get("/users", s.listUsers)
				r.Post("/users", s.createUser)
				r.Put("/users/admin/password", s.changeOwnPassword)
				r.Put("/users/{id}/password", s.resetPassword)
				r.Put("/users/{id}", s.updateUser)
				r.Delete("/users/{id}", s.deleteUser)
			})
		})
	})

	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// StartCleanup runs the login limiter's stale-entry sweep until ctx ends.
func (s *Server) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.limiter.cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// --- Auth ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string      `json:"token"`
	UserInfo *types.User `json:"userInfo"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		s.sendError(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	if !s.limiter.allow(req.Username) {
		s.sendError(w, "Too many login attempts", http.StatusTooManyRequests)
		return
	}

	token, user, err := s.authenticator.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, interfaces.ErrInvalidCredentials) {
			s.sendError(w, "Invalid username or password", http.StatusUnauthorized)
		} else {
			s.sendError(w, "Login failed", http.StatusInternalServerError)
		}
		return
	}

	s.sendJSON(w, http.StatusOK, loginResponse{Token: token, UserInfo: user.Sanitized()})
}

func (s *Server) userInfo(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())

	user, err := s.store.GetUser(r.Context(), claims.UserID)
	if err != nil {
		s.sendStoreError(w, err, "Failed to load user")
		return
	}

	s.sendJSON(w, http.StatusOK, user.Sanitized())
}

// --- Schedules ---

func (s *Server) listSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := s.store.ListSchedules(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		s.sendError(w, "Failed to list schedules", http.StatusInternalServerError)
		return
	}
	if schedules == nil {
		schedules = []*types.Schedule{}
	}
	s.sendJSON(w, http.StatusOK, schedules)
}

func (s *Server) listScheduleDates(w http.ResponseWriter, r *http.Request) {
	year := r.URL.Query().Get("year")
	month := r.URL.Query().Get("month")
	if year == "" || month == "" {
		s.sendError(w, "Year and month parameters are required", http.StatusBadRequest)
		return
	}

	dates, err := s.store.ListScheduleDates(r.Context(), year, month)
	if err != nil {
		s.sendError(w, "Failed to list schedule dates", http.StatusInternalServerError)
		return
	}
	if dates == nil {
		dates = []string{}
	}
	s.sendJSON(w, http.StatusOK, dates)
}

func (s *Server) getSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, err := s.store.GetSchedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.sendStoreError(w, err, "Failed to get schedule")
		return
	}
	s.sendJSON(w, http.StatusOK, schedule)
}

func (s *Server) createSchedule(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())

	var in coordinator.ScheduleInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	schedule, err := s.coordinator.CreateSchedule(r.Context(), &in, claims.UserID)
	if err != nil {
		s.sendMutationError(w, err, "Failed to create schedule")
		return
	}

	s.sendJSON(w, http.StatusCreated, schedule)
}

func (s *Server) updateSchedule(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())

	var in coordinator.ScheduleInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	schedule, err := s.coordinator.UpdateSchedule(r.Context(), chi.URLParam(r, "id"), &in, claims.UserID)
	if err != nil {
		s.sendMutationError(w, err, "Failed to update schedule")
		return
	}

	s.sendJSON(w, http.StatusOK, schedule)
}

func (s *Server) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.DeleteSchedule(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.sendMutationError(w, err, "Failed to delete schedule")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"message": "Schedule deleted"})
}

// --- Users ---

type onlineUsersResponse struct {
	AdminCount int `json:"adminCount"`
	UserCount  int `json:"userCount"`
}

func (s *Server) onlineUsers(w http.ResponseWriter, r *http.Request) {
	privileged, standard, err := s.store.CountActiveSince(r.Context(), time.Now().Add(-onlineWindow))
	if err != nil {
		s.sendError(w, "Failed to count online users", http.StatusInternalServerError)
		return
	}
	s.sendJSON(w, http.StatusOK, onlineUsersResponse{AdminCount: privileged, UserCount: standard})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.store.ListStandardUsers(r.Context())
	if err != nil {
		s.sendError(w, "Failed to list users", http.StatusInternalServerError)
		return
	}

	sanitized := make([]*types.User, 0, len(users))
	for _, u := range users {
		sanitized = append(sanitized, u.Sanitized())
	}
	s.sendJSON(w, http.StatusOK, sanitized)
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var in coordinator.UserInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if in.Role == "" {
		in.Role = types.RoleStandard
	}

	user, err := s.coordinator.CreateUser(r.Context(), &in)
	if err != nil {
		s.sendMutationError(w, err, "Failed to create user")
		return
	}

	s.sendJSON(w, http.StatusCreated, user.Sanitized())
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	var in coordinator.UserInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	user, err := s.coordinator.UpdateUser(r.Context(), chi.URLParam(r, "id"), &in)
	if err != nil {
		s.sendMutationError(w, err, "Failed to update user")
		return
	}

	s.sendJSON(w, http.StatusOK, user.Sanitized())
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.DeleteUser(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.sendMutationError(w, err, "Failed to delete user")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"message": "User deleted"})
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if err := s.coordinator.ResetPassword(r.Context(), chi.URLParam(r, "id"), req.NewPassword); err != nil {
		s.sendMutationError(w, err, "Failed to reset password")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"message": "Password reset"})
}

func (s *Server) changeOwnPassword(w http.ResponseWriter, r *http.Request) {
	claims, _ := claimsFrom(r.Context())

	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	err := s.coordinator.ChangeOwnPassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		if errors.Is(err, interfaces.ErrInvalidCredentials) {
			s.sendError(w, "Current password is incorrect", http.StatusBadRequest)
			return
		}
		s.sendMutationError(w, err, "Failed to change password")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"message": "Password changed"})
}

// --- Health ---

type healthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Connections map[string]int `json:"connections"`
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"
	if err := s.health.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}

	s.sendJSON(w, code, healthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.connections.Stats(),
	})
}

// --- Response helpers ---

type errorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) sendJSON(w http.ResponseWriter, code int, v interface{}) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	s.sendJSON(w, code, errorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// sendStoreError maps read-path store failures to status codes.
func (s *Server) sendStoreError(w http.ResponseWriter, err error, fallback string) {
	if errors.Is(err, interfaces.ErrNotFound) {
		s.sendError(w, "Not found", http.StatusNotFound)
		return
	}
	s.sendError(w, fallback, http.StatusInternalServerError)
}

// sendMutationError maps coordinator failures to status codes.
func (s *Server) sendMutationError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		s.sendError(w, "Not found", http.StatusNotFound)
	case errors.Is(err, interfaces.ErrUsernameTaken):
		s.sendError(w, "Username already exists", http.StatusBadRequest)
	case errors.Is(err, types.ErrValidation):
		s.sendError(w, err.Error(), http.StatusBadRequest)
	default:
		s.sendError(w, fallback, http.StatusInternalServerError)
	}
}
