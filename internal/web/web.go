package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/julienschmidt/httprouter"

	"semcal/internal/config"
	"semcal/internal/date"
	"semcal/internal/ics"
	appLog "semcal/internal/log"
	"semcal/internal/model"
	"semcal/internal/store"
	"semcal/internal/tasks"
)

// UserHeader names the session user when basic auth is off.
const UserHeader = "X-User"

// Options wires a Server.
type Options struct {
	Config   *config.Config
	Tasks    *tasks.Service
	Feeds    *ics.Feeds
	Location *time.Location
	// AccessLog receives one Apache combined line per request. Nil disables
	// access logging.
	AccessLog io.Writer
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// Server exposes the calendar over a JSON API.
type Server struct {
	cfg    *config.Config
	tasks  *tasks.Service
	feeds  *ics.Feeds
	loc    *time.Location
	now    func() time.Time
	access io.Writer
	router *httprouter.Router
}

// NewServer constructs a new Server.
func NewServer(opts Options) *Server {
	s := &Server{
		cfg:    opts.Config,
		tasks:  opts.Tasks,
		feeds:  opts.Feeds,
		loc:    opts.Location,
		now:    opts.Now,
		access: opts.AccessLog,
		router: httprouter.New(),
	}
	if s.cfg == nil {
		s.cfg = config.DefaultConfig()
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		appLog.Error("http handler panic", errors.New("panic"), "path", r.URL.Path, "value", v)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
	s.registerRoutes()
	return s
}

// Handler returns the full middleware chain: basic auth, gzip and the
// access log.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	h = handlers.CompressHandler(h)
	if s.access != nil {
		h = handlers.CombinedLoggingHandler(s.access, h)
	}
	return h
}

// Run serves on cfg.Listen until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials are treated as disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="semcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// session picks the user a request acts for: the basic auth user when auth
// is on, else the X-User header, else the configured default user.
func (s *Server) session(r *http.Request) store.Session {
	if s.basicAuthEnabled() {
		if u, _, ok := r.BasicAuth(); ok {
			return store.Session{UserID: u}
		}
	}
	if u := r.Header.Get(UserHeader); u != "" {
		return store.Session{UserID: u}
	}
	return store.Session{UserID: s.cfg.DefaultUser}
}

// today is the current calendar date in the display zone.
func (s *Server) today() time.Time {
	n := s.now().In(s.loc)
	return date.Of(n.Year(), n.Month(), n.Day())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// writeServiceError maps domain errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tasks.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, tasks.ErrReadOnly):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, model.ErrInvalidTask), errors.Is(err, date.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNoSession):
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		appLog.Error("api request failed", err, "method", r.Method, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
