// Package server provides the HTTP server and handlers.
package server

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"time"

	"github.com/bryan-buckman/letterbox/internal/auth"
	"github.com/bryan-buckman/letterbox/internal/letters"
	"github.com/bryan-buckman/letterbox/internal/metrics"
	"github.com/bryan-buckman/letterbox/internal/reading"
	"github.com/bryan-buckman/letterbox/internal/subscription"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// Options wires the server to its services.
type Options struct {
	Letters       *letters.Service
	Recorder      *reading.Recorder
	Subscriptions *subscription.Service
	Users         auth.Provider
	Tokens        *auth.TokenIssuer
	Auth          *auth.Middleware
	Metrics       *metrics.Metrics // optional; /metrics is mounted when set
	Logger        zerolog.Logger

	// StoreName is reported by /healthz.
	StoreName string

	CORSOrigins []string
	RateLimit   int
	RateWindow  time.Duration
}

// Server is the main HTTP server.
type Server struct {
	opts      Options
	letters   *letters.Service
	recorder  *reading.Recorder
	subs      *subscription.Service
	users     auth.Provider
	tokens    *auth.TokenIssuer
	auth      *auth.Middleware
	metrics   *metrics.Metrics
	log       zerolog.Logger
	validate  *validator.Validate
	markdown  goldmark.Markdown
	templates *template.Template
	router    chi.Router
}

// New creates a new server.
func New(opts Options) (*Server, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"date": formatDate,
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	s := &Server{
		opts:      opts,
		letters:   opts.Letters,
		recorder:  opts.Recorder,
		subs:      opts.Subscriptions,
		users:     opts.Users,
		tokens:    opts.Tokens,
		auth:      opts.Auth,
		metrics:   opts.Metrics,
		log:       opts.Logger.With().Str("component", "http").Logger(),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		templates: tmpl,
		// Letter bodies are operator-authored, so raw HTML from imported
		// feeds is passed through.
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
	}
	s.setupRoutes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	staticSub, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	// Pages.
	r.Group(func(r chi.Router) {
		r.Use(s.auth.Authenticate)
		r.Get("/", s.handleLanding)
		r.Get("/auth", s.handleAuthPage)
		r.Get("/logout", s.handleLogoutPage)
		r.With(s.rateLimit()).Post("/subscribe", s.handleSubscribeForm)
		r.With(s.rateLimit()).Post("/auth/login", s.handleLoginForm)
		r.With(s.rateLimit()).Post("/auth/register", s.handleRegisterForm)
		r.With(s.requirePage).Get("/letters", s.handleLettersPage)
		r.With(s.requirePage).Get("/letters/{number}", s.handleLetterPage)
	})

	// API.
	r.Route("/api", func(r chi.Router) {
		if len(s.opts.CORSOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins:   s.opts.CORSOrigins,
				AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders:   []string{"Content-Type", "Authorization"},
				AllowCredentials: true,
				MaxAge:           300,
			}))
		}
		r.Use(s.auth.Authenticate)

		r.Group(func(r chi.Router) {
			r.Use(s.rateLimit())
			r.Post("/subscribe", s.handleSubscribe)
			r.Post("/auth/register", s.handleRegister)
			r.Post("/login", s.handleLogin)
		})
		r.Post("/logout", s.handleLogout)
		r.Post("/cartas/registrar-leitura", s.handleRecordRead)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.RequireAuth)
			r.Get("/user", s.handleUser)
			r.Get("/letters", s.handleListLetters)
			r.Get("/letters/read", s.handleReadLetters)
			r.Get("/letters/{id}", s.handleGetLetter)
		})
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "store": s.opts.StoreName})
}

// --- Helpers ---

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.log.Error().Err(err).Str("template", name).Msg("template error")
		http.Error(w, "Render error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) renderMarkdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(src), &buf); err != nil {
		s.log.Warn().Err(err).Msg("markdown render failed")
		return template.HTML(template.HTMLEscapeString(src))
	}
	return template.HTML(buf.String())
}

func currentUser(r *http.Request) *auth.User {
	return auth.UserFromContext(r.Context())
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006")
}
