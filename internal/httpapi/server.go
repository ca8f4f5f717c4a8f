package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/ownmi/focussync/internal/auth"
	"github.com/ownmi/focussync/internal/config"
	"github.com/ownmi/focussync/internal/observability"
	"github.com/ownmi/focussync/internal/policy"
	"github.com/ownmi/focussync/internal/records"
	"github.com/ownmi/focussync/internal/session"
)

type Server struct {
	cfg      config.Config
	sessions *session.Manager
	records  *records.Service
	verifier *auth.Verifier
	metrics  *observability.Metrics
	log      logrus.FieldLogger
	clock    clockwork.Clock
	upgrader websocket.Upgrader
	hub      *hub
}

func New(cfg config.Config, sessions *session.Manager, recs *records.Service, verifier *auth.Verifier, metrics *observability.Metrics, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		cfg:      cfg,
		sessions: sessions,
		records:  recs,
		verifier: verifier,
		metrics:  metrics,
		log:      log.WithField("component", "httpapi"),
		clock:    clockwork.NewRealClock(),
		hub:      newHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
	sessions.SetExpireHook(s.onSessionExpired)
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Handler().ServeHTTP(w, r)
	})

	r.Get("/v1/focus/ws", s.handleFocusWS)

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)
		r.Get("/v1/focus/sessions", s.handleListRecords)
		r.Post("/v1/focus/sessions", s.handleAddRecord)
		r.Put("/v1/focus/sessions/{id}", s.handleEditRecord)
		r.Delete("/v1/focus/sessions/{id}", s.handleDeleteRecord)
		r.Get("/v1/focus/stats", s.handleStats)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	// A cheap query proves the store is reachable.
	if _, err := s.records.List(ctx, "readyz", s.clock.Now(), s.clock.Now()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"store_mode": storeMode(s.records.Store()),
	})
}

func storeMode(st records.Store) string {
	switch st.(type) {
	case *records.PostgresStore:
		return "postgres"
	case *records.SQLiteStore:
		return "sqlite"
	default:
		return "in-memory"
	}
}

type ctxKey struct{}

func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.verifier.FromRequest(r)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid credential")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, userID)))
	})
}

func userFrom(ctx context.Context) string {
	v, _ := ctx.Value(ctxKey{}).(string)
	return v
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"query":       policy.RedactQuery(r.URL.Query()),
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("http request")
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
