package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cardiolab/afdash/internal/analysis"
	"github.com/cardiolab/afdash/internal/auth"
	"github.com/cardiolab/afdash/internal/flow"
	"github.com/cardiolab/afdash/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// UserStore is the slice of the storage layer used by account handlers.
type UserStore interface {
	CreateUser(ctx context.Context, u storage.User) (uuid.UUID, error)
	GetUserByEmail(ctx context.Context, email string) (*storage.User, error)
	GetUserByID(ctx context.Context, id string) (*storage.User, error)
	UpdateProfile(ctx context.Context, id, username string, age int, gender string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// RecordReader serves the record history and dashboard views.
type RecordReader interface {
	ListRecordsByUser(ctx context.Context, userID string) ([]analysis.Record, error)
	GetRecord(ctx context.Context, userID, recordID string) (*analysis.Record, error)
}

// ResetTokens issues and redeems password reset tokens.
type ResetTokens interface {
	Issue(ctx context.Context, userID string) (string, error)
	Consume(ctx context.Context, token string) (string, error)
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	users   UserStore
	records RecordReader
	flows   *flow.Manager
	tokens  *auth.Tokens
	resets  ResetTokens
	hub     *Hub
	log     *slog.Logger
	router  chi.Router
}

// New creates a new Server with all routes configured.
func New(users UserStore, records RecordReader, flows *flow.Manager, tokens *auth.Tokens, resets ResetTokens, hub *Hub, log *slog.Logger) *Server {
	s := &Server{
		users:   users,
		records: records,
		flows:   flows,
		tokens:  tokens,
		resets:  resets,
		hub:     hub,
		log:     log,
		router:  chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/forgot-password", s.handleForgotPassword)
		r.Post("/auth/reset-password", s.handleResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(JWTAuth(s.tokens))

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/me", s.handleMe)
			r.Get("/profile", s.handleGetProfile)
			r.Put("/profile", s.handleUpdateProfile)

			r.Get("/records", s.handleListRecords)
			r.Get("/records/subscribe", s.handleSubscribe)
			r.Get("/records/{id}", s.handleGetRecord)
			r.Get("/dashboard", s.handleDashboard)

			r.Route("/analyze/{mode}", func(r chi.Router) {
				r.Post("/", s.handleAnalyze)
				r.Get("/status", s.handleStatus)
				r.Post("/save", s.handleSave)
				r.Post("/reset", s.handleReset)
				r.Get("/report", s.handleReport)
			})
		})
	})
}
