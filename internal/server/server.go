// Package server is the reference data backend: account auth plus the
// owner-scoped Todo model, served over JSON.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"todogate/internal/model"
	"todogate/internal/storage"
)

// Store is the persistence the handlers need; *storage.Store satisfies it.
type Store interface {
	ListItems(ctx context.Context, owner string) ([]model.Item, error)
	CreateItem(ctx context.Context, owner string, in model.CreateItemInput) (model.Item, error)
	CreateUser(ctx context.Context, username, password string) error
	Authenticate(ctx context.Context, username, password string) error
	CreateSession(ctx context.Context, username string, ttl time.Duration) (storage.Session, error)
	LookupSession(ctx context.Context, token string) (storage.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

type Options struct {
	SessionTTL time.Duration
	// Logger is used for request logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

type Server struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
}

type ctxKey int

const userKey ctxKey = iota

func New(store Store, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Server{store: store, ttl: ttl, logger: logger}
}

// Router wires the HTTP routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	a := r.PathPrefix("/auth").Subrouter()
	a.HandleFunc("/signup", s.handleSignUp).Methods(http.MethodPost)
	a.HandleFunc("/signin", s.handleSignIn).Methods(http.MethodPost)
	a.Handle("/signout", s.requireSession(http.HandlerFunc(s.handleSignOut))).Methods(http.MethodPost)
	a.Handle("/me", s.requireSession(http.HandlerFunc(s.handleMe))).Methods(http.MethodGet)

	r.Handle("/models/todo", s.requireSession(http.HandlerFunc(s.handleListTodos))).Methods(http.MethodGet)
	r.Handle("/models/todo", s.requireSession(http.HandlerFunc(s.handleCreateTodo))).Methods(http.MethodPost)
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("backend listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type signInResponse struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type userResponse struct {
	Username string `json:"username"`
}

type listResponse struct {
	Data      []model.Item `json:"data"`
	NextToken *string      `json:"nextToken"`
}

type itemResponse struct {
	Data model.Item `json:"data"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := s.store.CreateUser(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, storage.ErrUserExists):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, storage.ErrInvalidCredentials):
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	case err != nil:
		s.internalError(w, "create user", err)
		return
	}
	s.logger.Info("user created", "username", strings.TrimSpace(req.Username))
	writeJSON(w, http.StatusCreated, userResponse{Username: strings.TrimSpace(req.Username)})
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	err := s.store.Authenticate(r.Context(), req.Username, req.Password)
	if errors.Is(err, storage.ErrInvalidCredentials) {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	if err != nil {
		s.internalError(w, "authenticate", err)
		return
	}
	sess, err := s.store.CreateSession(r.Context(), req.Username, s.ttl)
	if err != nil {
		s.internalError(w, "create session", err)
		return
	}
	writeJSON(w, http.StatusOK, signInResponse{Token: sess.Token, Username: sess.Username, ExpiresAt: sess.ExpiresAt})
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSession(r.Context(), bearerToken(r)); err != nil {
		s.internalError(w, "delete session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userResponse{Username: userFrom(r.Context())})
}

func (s *Server) handleListTodos(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListItems(r.Context(), userFrom(r.Context()))
	if err != nil {
		s.internalError(w, "list items", err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: items})
}

func (s *Server) handleCreateTodo(w http.ResponseWriter, r *http.Request) {
	var in model.CreateItemInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	it, err := s.store.CreateItem(r.Context(), userFrom(r.Context()), in)
	if err != nil {
		s.internalError(w, "create item", err)
		return
	}
	writeJSON(w, http.StatusCreated, itemResponse{Data: it})
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		sess, err := s.store.LookupSession(r.Context(), token)
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "session expired or unknown")
			return
		}
		if err != nil {
			s.internalError(w, "lookup session", err)
			return
		}
		ctx := context.WithValue(r.Context(), userKey, sess.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) internalError(w http.ResponseWriter, op string, err error) {
	s.logger.Error(op+" failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func userFrom(ctx context.Context) string {
	u, _ := ctx.Value(userKey).(string)
	return u
}

func bearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
