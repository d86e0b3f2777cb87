package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-meetrelay/internal/config"
	"github.com/npezzotti/go-meetrelay/internal/database"
	"github.com/npezzotti/go-meetrelay/internal/relay"
)

type RelayApp struct {
	log            *log.Logger
	db             database.RelayRepository
	mux            *http.Server
	rs             *relay.RelayServer
	signingKey     []byte
	allowedOrigins []string
}

func NewRelayApp(mux *http.ServeMux, logger *log.Logger, rs *relay.RelayServer, db database.RelayRepository, cfg *config.Config) *RelayApp {
	s := &RelayApp{
		log:            logger,
		db:             db,
		rs:             rs,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("GET /api/messages", s.getMessages)
	mux.HandleFunc("GET /api/participants", s.getParticipants)
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *RelayApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *RelayApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
