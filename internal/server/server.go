// Package server is the composition root: it wires the repositories,
// services, and handlers together, mounts the routes, and owns the HTTP
// server lifecycle.
//
// The dependency chain is strictly layered — handlers receive services,
// services receive repository interfaces, and only this package sees the
// concrete sqlite.DB.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/volfir1/gadget-galaxy-api/internal/auth"
	"github.com/volfir1/gadget-galaxy-api/internal/config"
	"github.com/volfir1/gadget-galaxy-api/internal/email"
	"github.com/volfir1/gadget-galaxy-api/internal/handler"
	"github.com/volfir1/gadget-galaxy-api/internal/middleware"
	"github.com/volfir1/gadget-galaxy-api/internal/model"
	sqliteRepo "github.com/volfir1/gadget-galaxy-api/internal/repository/sqlite"
	"github.com/volfir1/gadget-galaxy-api/internal/service"
	"github.com/volfir1/gadget-galaxy-api/internal/upload"
)

// Server owns the router and the resources that must be released on
// shutdown (the database connection).
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New assembles the full dependency graph and mounts the routes.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

func (s *Server) setupRoutes() error {
	cfg := s.config

	tokens, err := auth.NewTokenService(
		cfg.JWTSecret, cfg.JWTRefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		return err
	}

	passwords := auth.NewPasswordService()
	cookies := auth.CookieWriter{Secure: cfg.IsProduction()}
	sessions := auth.NewSessions(tokens, s.db, cookies, s.logger)

	mailer := email.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom)
	emails := email.NewService(mailer, cfg.FrontendURL)

	images, err := upload.NewDiskStore(cfg.UploadDir, "")
	if err != nil {
		return err
	}

	verifier := auth.NewGoogleVerifier(cfg.GoogleClientID)
	provider := auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL)

	authService := service.NewAuthService(s.db, tokens, passwords, emails, images, s.logger)
	userService := service.NewUserService(s.db, passwords, s.logger)
	catalogService := service.NewCatalogService(s.db, s.db, images, s.logger)

	authHandler := handler.NewAuthHandler(
		authService, verifier, provider, tokens, sessions, cookies, cfg.FrontendURL, s.logger)
	userHandler := handler.NewUserHandler(userService, s.logger)
	catalogHandler := handler.NewCatalogHandler(catalogService, s.logger)

	// Global middleware, in execution order.
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(middleware.SecurityHeaders(cfg.IsProduction()))

	// Uploaded images are served straight off disk in development; in
	// production the image host serves them and this mount goes unused.
	fileServer := http.FileServer(http.Dir(cfg.UploadDir))
	s.router.Handle("/uploads/*", http.StripPrefix("/uploads/", fileServer))

	// The gate is where a rate limiter plugs in; permit-all by default.
	authGate := middleware.Limit(middleware.PermitAll{})

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(authGate)
			authHandler.Routes(r)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(sessions.Require)
			r.Use(sessions.RequireRole(model.RoleAdmin))
			userHandler.Routes(r)
		})

		r.Route("/categories", func(r chi.Router) {
			catalogHandler.CategoryRoutes(r)
			r.Group(func(r chi.Router) {
				r.Use(sessions.Require)
				r.Use(sessions.RequireRole(model.RoleAdmin))
				catalogHandler.CategoryAdminRoutes(r)
			})
		})

		r.Route("/products", func(r chi.Router) {
			catalogHandler.ProductRoutes(r)
			r.Group(func(r chi.Router) {
				r.Use(sessions.Require)
				r.Use(sessions.RequireRole(model.RoleAdmin))
				catalogHandler.ProductAdminRoutes(r)
			})
		})
	})

	return nil
}

// Router exposes the assembled handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully: stop accepting connections, drain in-flight requests (30s),
// close the database.
func (s *Server) Start() error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("env", s.config.Env),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
