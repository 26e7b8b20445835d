package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-livechat/internal/config"
	"github.com/npezzotti/go-livechat/internal/database"
	"github.com/npezzotti/go-livechat/internal/server"
	"github.com/rs/zerolog"
)

type LiveChatApp struct {
	log            zerolog.Logger
	db             database.ChatRepository
	srv            *http.Server
	cs             *server.ChatServer
	signingKey     []byte
	allowedOrigins []string
}

func NewLiveChatApp(mux *http.ServeMux, logger zerolog.Logger, cs *server.ChatServer, db database.ChatRepository, cfg *config.Config) *LiveChatApp {
	s := &LiveChatApp{
		log:            logger.With().Str("component", "api").Logger(),
		db:             db,
		cs:             cs,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.HandleFunc("GET /api/chat/sessions/{id}/messages", s.authMiddleware(s.sessionHistory))
	mux.HandleFunc("GET /api/admin/chat/sessions", s.adminMiddleware(s.listActiveSessions))
	mux.HandleFunc("GET /api/admin/chat/sessions/{id}/messages", s.adminMiddleware(s.adminSessionMessages))
	mux.HandleFunc("POST /api/admin/chat/sessions/{id}/assign", s.adminMiddleware(s.assignSession))
	mux.HandleFunc("POST /api/admin/chat/sessions/{id}/end", s.adminMiddleware(s.endSession))
	mux.HandleFunc("GET /api/admin/chat/stats/{adminId}", s.adminMiddleware(s.adminStats))
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	return s
}

func (s *LiveChatApp) Handler() http.Handler {
	return s.srv.Handler
}

func (s *LiveChatApp) Start() error {
	s.log.Info().Str("addr", s.srv.Addr).Msg("starting server")
	return s.srv.ListenAndServe()
}

func (s *LiveChatApp) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
