// internal/httpserver/server.go
//
// HTTP status/admin API for the game controller.
// Responsibilities:
//   - Router + middleware (JSON, CORS, timeouts, panic recovery, request IDs).
//   - Public endpoints: "/", "/health".
//   - Read-only session endpoints: GET /state, GET /matches.
//   - Admin endpoints (require admin JWT): POST /admin/reset.
//
// Notes:
//   - The API never touches controller state directly; every query and command
//     goes through the controller's event queue.
//   - The bus stays the only input path for players. The API is for operators.

package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/robalobadob/meeples-gambit/internal/controller"
	"github.com/robalobadob/meeples-gambit/internal/store"
)

// Session is the controller surface the API needs.
type Session interface {
	Snapshot(ctx context.Context) (controller.Snapshot, error)
	Abort(ctx context.Context, reason string) error
}

// Options configures the API.
type Options struct {
	ClientOrigin string // CORS origin, defaults to http://localhost:5173
	AdminSecret  string // HS256 key for admin tokens; empty disables /admin
}

// Server bundles router, session and journal.
type Server struct {
	r       *chi.Mux
	session Session
	journal store.Journal
	secret  []byte
	log     zerolog.Logger
}

// New constructs a Server, installs middleware, and registers routes.
func New(session Session, journal store.Journal, opts Options, logger zerolog.Logger) *Server {
	s := &Server{
		r:       chi.NewRouter(),
		session: session,
		journal: journal,
		secret:  []byte(opts.AdminSecret),
		log:     logger.With().Str("component", "http").Logger(),
	}
	origin := opts.ClientOrigin
	if origin == "" {
		origin = "http://localhost:5173"
	}

	// --- middleware ---
	s.r.Use(chimw.RequestID)                // add X-Request-ID
	s.r.Use(chimw.RealIP)                   // set RemoteAddr from X-Forwarded-For etc.
	s.r.Use(chimw.Recoverer)                // recover from panics
	s.r.Use(chimw.Timeout(5 * time.Second)) // bound handler time
	s.r.Use(jsonContentType)                // default JSON responses
	s.r.Use(cors(origin))                   // single-origin CORS for the dashboard

	// --- diagnostics ---
	s.r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"service":"meeples-gambit","endpoints":["/health","/state","/matches","POST /admin/reset"]}`))
	})
	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	s.r.Get("/state", s.handleState)
	s.r.Get("/matches", s.handleMatches)

	s.r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireAdmin())
		r.Post("/reset", s.handleReset)
	})

	// JSON 404 for easier debugging
	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not_found","path":"`+r.URL.Path+`"}`, http.StatusNotFound)
	})

	return s
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler { return s.r }

// ----------------------------- middleware ----------------------------------

// jsonContentType sets a default JSON Content-Type header on all responses.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		next.ServeHTTP(w, r)
	})
}

// cors allows a single dashboard origin.
func cors(origin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ------------------------------ handlers -----------------------------------

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.session.Snapshot(r.Context())
	if err != nil {
		s.log.Warn().Err(err).Msg("snapshot")
		http.Error(w, `{"error":"unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	_ = json.NewEncoder(w).Encode(snap)
}

func (s *Server) handleMatches(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		_, _ = w.Write([]byte(`[]`))
		return
	}
	limit := store.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			http.Error(w, `{"error":"bad_limit"}`, http.StatusBadRequest)
			return
		}
		limit = n
	}
	matches, err := s.journal.RecentMatches(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("list matches")
		http.Error(w, `{"error":"db_error"}`, http.StatusInternalServerError)
		return
	}
	if matches == nil {
		matches = []store.Match{}
	}
	_ = json.NewEncoder(w).Encode(matches)
}

type resetReq struct {
	Reason string `json:"reason"`
}

// handleReset aborts the running game and returns the console to the lobby.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req resetReq
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.Reason == "" {
		req.Reason = "admin reset"
	}
	if err := s.session.Abort(r.Context(), req.Reason); err != nil {
		s.log.Warn().Err(err).Msg("admin reset")
		http.Error(w, `{"error":"unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	s.log.Info().Str("admin", adminSubject(r)).Str("reason", req.Reason).Msg("game reset by admin")
	_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}
