// Package api exposes exam sessions over HTTP for the browser UI.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/sessions"

	"github.com/p-n-ai/exam-shuffler/internal/session"
)

const (
	cookieName  = "exam-session"
	cookieKeyID = "id"
)

type ctxKey struct{}

// Server holds the HTTP handlers.
type Server struct {
	manager   *session.Manager
	hub       *session.Hub
	cookies   sessions.Store
	origins   []string
	maxUpload int64
	ready     func(ctx context.Context) error
}

// Config configures a Server.
type Config struct {
	// CookieSecret signs the session cookie.
	CookieSecret string
	// AllowedOrigins lists browser origins allowed by CORS and the websocket.
	AllowedOrigins []string
	// MaxUploadBytes caps the uploaded PDF size.
	MaxUploadBytes int64
	// Secure marks the cookie HTTPS only.
	Secure bool
	// Ready reports whether dependencies are reachable, for /readyz.
	Ready func(ctx context.Context) error
}

// NewServer creates a Server. hub may be nil, which disables the event stream.
func NewServer(m *session.Manager, hub *session.Hub, cfg Config) *Server {
	store := sessions.NewCookieStore([]byte(cfg.CookieSecret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int((24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	}

	ready := cfg.Ready
	if ready == nil {
		ready = m.Ping
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 50 << 20
	}

	return &Server{
		manager:   m,
		hub:       hub,
		cookies:   store,
		origins:   cfg.AllowedOrigins,
		maxUpload: maxUpload,
		ready:     ready,
	}
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	r.Route("/api/v1/session", func(api chi.Router) {
		api.Use(s.withSession)

		api.Get("/", s.handleGet)
		api.Delete("/", s.handleReset)
		api.Post("/upload", s.handleUpload)
		api.Put("/config", s.handleConfigure)
		api.Get("/pages/{page}/preview", s.handlePreview)
		api.Post("/process", s.handleProcess)
		api.Get("/events", s.handleEvents)
		api.Post("/reshuffle", s.handleReshuffle)
		api.Get("/export/{format}", s.handleExport)

		api.Route("/exam", func(ex chi.Router) {
			ex.Post("/start", s.handleStartExam)
			ex.Put("/answers/{questionID}", s.handleAnswer)
			ex.Post("/finish", s.handleFinish)
			ex.Post("/retry", s.handleRetry)
			ex.Post("/back", s.handleBack)
		})
	})

	return r
}

// withSession binds the request to the session named in the cookie,
// creating one when the cookie is missing or its session has expired.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, _ := s.cookies.Get(r, cookieName)
		id, _ := cookie.Values[cookieKeyID].(string)

		if id != "" {
			if _, err := s.manager.Get(r.Context(), id); err != nil {
				if session.KindOf(err) != session.KindNotFound {
					writeSessionError(w, r, err)
					return
				}
				id = ""
			}
		}

		if id == "" {
			sess, err := s.manager.Create(r.Context())
			if err != nil {
				writeSessionError(w, r, err)
				return
			}
			id = sess.ID
			cookie.Values[cookieKeyID] = id
			if err := cookie.Save(r, w); err != nil {
				slog.Error("saving session cookie", "error", err)
			}
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func sessionID(r *http.Request) string {
	id, _ := r.Context().Value(ctxKey{}).(string)
	return id
}

// requestLogger logs each request with slog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
