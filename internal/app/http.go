package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"diocese/api/internal/auth"
	"diocese/api/internal/rbac"
	"diocese/api/internal/search"
	"diocese/api/internal/store"
)

const maxBodyBytes = 2 << 20

type HTTPServer struct {
	service        *Service
	corsOrigin     string
	logger         *zap.Logger
	contactLimiter *limiterCache
	router         chi.Router
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	s := &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		logger:     service.logger,
	}
	if service.cfg.ContactRateLimit > 0 {
		s.contactLimiter = newLimiterCache(service.cfg.ContactRateLimit, max(service.cfg.ContactBurst, 1))
	}
	s.router = s.routes()
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(s.withMiddleware)
	r.Use(chimw.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/ready", s.handleReady)

		r.Get("/archdeaconries", s.handleListArchdeaconries)
		r.Get("/archdeaconries/{id}", s.handleGetArchdeaconry)
		r.Get("/parishes", s.handleListParishes)
		r.Get("/parishes/{id}", s.handleGetParish)
		r.Get("/priests", s.handleListPriests)
		r.Get("/priests/{id}", s.handleGetPriest)
		r.Get("/events", s.handleListEvents)
		r.Get("/events/{id}", s.handleGetEvent)
		r.Get("/bishops-charge", s.handleActiveCharge)
		r.Get("/search", s.handleSearch)
		r.With(s.limitContacts).Post("/contacts", s.handleSubmitContact)

		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/signin", s.handleSignIn)
		r.Post("/auth/refresh", s.handleRefresh)

		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Get("/session", s.handleSession)
			r.Post("/auth/logout", s.handleLogout)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireSession)
			s.adminRoutes(r)
		})
	})
	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

type sessionKey struct{}

func sessionFrom(r *http.Request) Session {
	session, _ := r.Context().Value(sessionKey{}).(Session)
	return session
}

func (s *HTTPServer) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
				return
			}
			s.logger.Error("session lookup failed", zap.String("request_id", requestIDFrom(r.Context())), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, session)))
	})
}

// requireAction rejects sessions whose role lacks action.
func (s *HTTPServer) requireAction(action rbac.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := sessionFrom(r)
			if !s.service.Can(session.Role, action) {
				s.forbid(w, r, session, action)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *HTTPServer) forbid(w http.ResponseWriter, r *http.Request, session Session, action rbac.Action) {
	writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden", map[string]any{"role": session.Role, "action": string(action)})
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		if r.Method == http.MethodOptions {
			writer.WriteHeader(http.StatusNoContent)
		} else {
			next.ServeHTTP(writer, r)
		}

		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-ID, X-Archive-Key")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

// fail maps err to a response. Unexpected errors are logged with the request id.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeError(w, status, code, message, details)
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

// decode reads the body into target and writes a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeBody(w, r, target); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return false
	}
	return true
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	var dup *store.UniqueViolation
	if errors.As(err, &dup) {
		return http.StatusConflict, "CONFLICT", "Already exists", map[string]any{"constraint": dup.Constraint}
	}
	if errors.Is(err, store.ErrInUse) {
		return http.StatusConflict, "IN_USE", "Still referenced", nil
	}
	if errors.Is(err, store.ErrInvalidReference) {
		return http.StatusBadRequest, "INVALID_REFERENCE", "Referenced record does not exist", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, true
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, false
	}
	return value, true
}

func invalidQuery(w http.ResponseWriter, name, message string) {
	writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed",
		map[string]any{"fields": []FieldError{{Field: name, Message: message}}})
}

func (s *HTTPServer) handleListArchdeaconries(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListArchdeaconries(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"archdeaconries": items})
}

func (s *HTTPServer) handleGetArchdeaconry(w http.ResponseWriter, r *http.Request) {
	item, err := s.service.GetArchdeaconry(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleListParishes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	items, err := s.service.ListParishes(r.Context(), store.ParishFilter{
		Search:         strings.TrimSpace(query.Get("search")),
		ArchdeaconryID: strings.TrimSpace(query.Get("archdeaconryId")),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"parishes": items})
}

func (s *HTTPServer) handleGetParish(w http.ResponseWriter, r *http.Request) {
	item, err := s.service.GetParish(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleListPriests(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	items, err := s.service.ListPriests(r.Context(), store.PriestFilter{
		Search:   strings.TrimSpace(query.Get("search")),
		ParishID: strings.TrimSpace(query.Get("parishId")),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"priests": items})
}

func (s *HTTPServer) handleGetPriest(w http.ResponseWriter, r *http.Request) {
	item, err := s.service.GetPriest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit")
	if !ok {
		invalidQuery(w, "limit", "must be a non-negative integer")
		return
	}
	query := r.URL.Query()
	category := strings.ToLower(strings.TrimSpace(query.Get("category")))
	if category != "" && !eventCategories[category] {
		invalidQuery(w, "category", "is not a known category")
		return
	}
	featured, _ := strconv.ParseBool(query.Get("featured"))
	items, err := s.service.ListEvents(r.Context(), store.EventFilter{
		Limit:        limit,
		Category:     category,
		FeaturedOnly: featured,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": items})
}

func (s *HTTPServer) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	item, err := s.service.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleActiveCharge answers null when no charge is published.
func (s *HTTPServer) handleActiveCharge(w http.ResponseWriter, r *http.Request) {
	item, err := s.service.ActiveCharge(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	text := strings.TrimSpace(query.Get("q"))
	if text == "" {
		invalidQuery(w, "q", "is required")
		return
	}
	typ, err := search.ParseType(strings.TrimSpace(query.Get("type")))
	if err != nil {
		invalidQuery(w, "type", "must be parish, priest or event")
		return
	}
	limit, ok := queryInt(r, "limit")
	if !ok {
		invalidQuery(w, "limit", "must be a non-negative integer")
		return
	}
	offset, ok := queryInt(r, "offset")
	if !ok {
		invalidQuery(w, "offset", "must be a non-negative integer")
		return
	}
	writeJSON(w, http.StatusOK, s.service.Search(r.Context(), search.Query{
		Text:       text,
		FilterType: typ,
		Limit:      limit,
		Offset:     offset,
	}))
}

func (s *HTTPServer) handleSubmitContact(w http.ResponseWriter, r *http.Request) {
	var input ContactInput
	if !decode(w, r, &input) {
		return
	}
	item, err := s.service.SubmitContact(r.Context(), input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var input RegisterInput
	if !decode(w, r, &input) {
		return
	}
	user, err := s.service.Register(r.Context(), input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"userId":   user.ID,
		"username": user.Username,
		"role":     user.Role,
	})
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"role":         session.Role,
		"expiresAt":    session.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Identifier string `json:"identifier"`
		Username   string `json:"username"`
		Email      string `json:"email"`
		Password   string `json:"password"`
	}
	if !decode(w, r, &input) {
		return
	}
	identifier := input.Identifier
	if identifier == "" {
		identifier = input.Username
	}
	if identifier == "" {
		identifier = input.Email
	}
	session, err := s.service.SignIn(r.Context(), identifier, input.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var input struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !decode(w, r, &input) {
		return
	}
	session, err := s.service.Refresh(r.Context(), input.RefreshToken)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionPayload(session))
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	var input struct {
		RefreshToken string `json:"refreshToken"`
	}
	if r.ContentLength != 0 && !decode(w, r, &input) {
		return
	}
	if err := s.service.Logout(r.Context(), sessionFrom(r), input.RefreshToken); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"userId":    session.UserID,
		"userName":  session.UserName,
		"role":      session.Role,
		"expiresAt": session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
