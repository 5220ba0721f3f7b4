package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"solutionhub/internal/auth"
	"solutionhub/internal/config"
	"solutionhub/internal/diagram"
	"solutionhub/internal/domain"
	"solutionhub/internal/explorer"
	"solutionhub/internal/solution"
)

type contextKey string

const contextKeyAdminSubject contextKey = "admin_subject"

type Server struct {
	cfg       config.Config
	solutions *solution.Registry
	diagrams  *diagram.Registry
	factory   explorer.Factory
	logger    *slog.Logger
}

func NewServer(
	cfg config.Config,
	solutions *solution.Registry,
	diagrams *diagram.Registry,
	factory explorer.Factory,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		solutions: solutions,
		diagrams:  diagrams,
		factory:   factory,
		logger:    logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/admin/login", s.handleAdminLogin)

	r.Group(func(protected chi.Router) {
		protected.Use(s.requireAdmin)

		protected.Get("/solutions", s.handleListSolutions)
		protected.Post("/solutions", s.handleAddSolution)
		protected.Delete("/solutions", s.handleRemoveSolution)
		protected.Get("/solutions/remote", s.handleListRemoteSolutions)
		protected.Get("/solutions/persisted", s.handleListPersistedSolutions)
		protected.Get("/solutions/entry", s.handleGetSolution)
		protected.Post("/solutions/login", s.handleSolutionLogin)
		protected.Post("/solutions/logout", s.handleSolutionLogout)
		protected.Post("/solutions/retry", s.handleRetryConnector)
		protected.Get("/solutions/diagrams", s.handleSolutionDiagrams)
		protected.Get("/solutions/authority", s.handleSolutionAuthority)

		protected.Get("/diagrams", s.handleListDiagrams)
		protected.Put("/diagrams", s.handleUpsertDiagram)
		protected.Post("/diagrams/open", s.handleOpenDiagramFile)
		protected.Delete("/diagrams", s.handleCloseDiagram)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Username != s.cfg.AdminUsername || req.Password != s.cfg.AdminPassword {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := s.signAdminToken(req.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create admin token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_at": expiresAt.Format(time.RFC3339),
		"type":       "Bearer",
	})
}

func (s *Server) handleListSolutions(w http.ResponseWriter, r *http.Request) {
	writeEntries(w, s.solutions.GetAllSolutionEntries())
}

func (s *Server) handleListRemoteSolutions(w http.ResponseWriter, r *http.Request) {
	writeEntries(w, s.solutions.GetRemoteSolutionEntries())
}

func (s *Server) handleListPersistedSolutions(w http.ResponseWriter, r *http.Request) {
	writeEntries(w, s.solutions.GetPersistedEntries())
}

func (s *Server) handleGetSolution(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookup(w, r.URL.Query().Get("uri"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, entryView(entry))
}

func (s *Server) handleAddSolution(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URI           string `json:"uri"`
		IdentityToken string `json:"identity_token"`
		Authority     string `json:"authority"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.URI = strings.TrimSpace(req.URI)
	if req.URI == "" {
		writeError(w, http.StatusBadRequest, "uri is required")
		return
	}
	if req.URI == domain.OpenDiagramsURI {
		writeError(w, http.StatusBadRequest, "uri is reserved")
		return
	}

	entry := domain.SolutionEntry{URI: req.URI, Authority: req.Authority}
	if req.IdentityToken != "" {
		identity, userName, err := auth.ParseIdentityToken(req.IdentityToken)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		entry.Identity = &identity
		entry.IsLoggedIn = true
		entry.UserName = userName
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ConnectorTimeout)
	defer cancel()
	conn, err := explorer.Resolve(ctx, s.factory, entry.URI, entry.Identity)
	if err != nil {
		s.logger.Warn("could not open solution", "uri", entry.URI, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	entry.Service = conn
	entry.ConnectorState = domain.ConnectorReady
	if entry.Authority == "" {
		if api, ok := conn.(*explorer.ManagementAPI); ok {
			if authority, err := api.Authority(ctx); err == nil {
				entry.Authority = authority
			}
		}
	}

	if err := s.solutions.AddSolutionEntry(entry); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, entryView(entry))
}

func (s *Server) handleRemoveSolution(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		writeError(w, http.StatusBadRequest, "uri is required")
		return
	}
	s.solutions.RemoveSolutionEntryByURI(uri)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleSolutionLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URI           string `json:"uri"`
		IdentityToken string `json:"identity_token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	identity, userName, err := auth.ParseIdentityToken(req.IdentityToken)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	found, err := s.solutions.Login(r.Context(), req.URI, identity, userName)
	if !found {
		writeError(w, http.StatusNotFound, "solution not open")
		return
	}
	if err != nil {
		s.logger.Warn("connector rejected identity", "uri", req.URI, "error", err)
	}
	entry, _ := s.solutions.GetSolutionEntryForURI(req.URI)
	writeJSON(w, http.StatusOK, entryView(entry))
}

func (s *Server) handleSolutionLogout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URI string `json:"uri"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	found, err := s.solutions.Logout(r.Context(), req.URI)
	if !found {
		writeError(w, http.StatusNotFound, "solution not open")
		return
	}
	if err != nil {
		s.logger.Warn("connector rejected logout", "uri", req.URI, "error", err)
	}
	entry, _ := s.solutions.GetSolutionEntryForURI(req.URI)
	writeJSON(w, http.StatusOK, entryView(entry))
}

func (s *Server) handleRetryConnector(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URI string `json:"uri"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	err := s.solutions.RetryConnector(r.Context(), req.URI)
	if errors.Is(err, solution.ErrUnknownSolution) {
		writeError(w, http.StatusNotFound, "solution not open")
		return
	}
	entry, _ := s.solutions.GetSolutionEntryForURI(req.URI)
	status := http.StatusOK
	if err != nil {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, entryView(entry))
}

func (s *Server) handleSolutionDiagrams(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookup(w, r.URL.Query().Get("uri"))
	if !ok {
		return
	}
	if entry.Service == nil {
		writeError(w, http.StatusConflict, "solution has no connector: "+string(entry.ConnectorState))
		return
	}
	sol, err := entry.Service.LoadSolution(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sol)
}

func (s *Server) handleSolutionAuthority(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookup(w, r.URL.Query().Get("uri"))
	if !ok {
		return
	}
	if entry.Authority != "" {
		writeJSON(w, http.StatusOK, map[string]string{"authority": entry.Authority})
		return
	}
	api, isAPI := entry.Service.(*explorer.ManagementAPI)
	if !isAPI {
		writeError(w, http.StatusConflict, "solution is not backed by a reachable engine")
		return
	}
	authority, err := api.Authority(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"authority": authority})
}

func (s *Server) handleListDiagrams(w http.ResponseWriter, r *http.Request) {
	diagrams := s.diagrams.GetOpenDiagrams()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"diagrams": diagrams,
		"count":    len(diagrams),
	})
}

func (s *Server) handleUpsertDiagram(w http.ResponseWriter, r *http.Request) {
	var req domain.OpenDiagram
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	saved, err := s.diagrams.AddOpenDiagram(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleOpenDiagramFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	d, err := s.diagrams.OpenFile(r.Context(), req.Path)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleCloseDiagram(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		writeError(w, http.StatusBadRequest, "uri is required")
		return
	}
	s.diagrams.RemoveOpenDiagramByURI(uri)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) lookup(w http.ResponseWriter, uri string) (domain.SolutionEntry, bool) {
	if uri == "" {
		writeError(w, http.StatusBadRequest, "uri is required")
		return domain.SolutionEntry{}, false
	}
	entry, ok := s.solutions.GetSolutionEntryForURI(uri)
	if !ok {
		writeError(w, http.StatusNotFound, "solution not open")
		return domain.SolutionEntry{}, false
	}
	return entry, true
}

func (s *Server) signAdminToken(subject string) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.cfg.APITokenTTL)
	claims := jwt.MapClaims{
		"sub": subject,
		"exp": expiresAt.Unix(),
		"iat": now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		parsed, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
			return []byte(s.cfg.JWTSecret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !parsed.Valid {
			writeError(w, http.StatusUnauthorized, "invalid admin token")
			return
		}
		sub, err := parsed.Claims.GetSubject()
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid admin claims")
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyAdminSubject, sub)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func entryView(e domain.SolutionEntry) map[string]interface{} {
	view := map[string]interface{}{
		"uri":             e.URI,
		"is_remote":       e.IsRemote(),
		"is_logged_in":    e.IsLoggedIn,
		"user_name":       e.UserName,
		"authority":       e.Authority,
		"connector_state": e.ConnectorState,
		"has_connector":   e.Service != nil,
	}
	if e.ConnectorError != "" {
		view["connector_error"] = e.ConnectorError
	}
	if e.Identity != nil {
		view["user_id"] = e.Identity.UserID
	}
	return view
}

func writeEntries(w http.ResponseWriter, entries []domain.SolutionEntry) {
	views := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		views = append(views, entryView(e))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"solutions": views,
		"count":     len(views),
	})
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, target interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
