package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/queryline/queryline/internal/config"
	"github.com/queryline/queryline/internal/database"
	"github.com/queryline/queryline/internal/pipeline"
)

type Server struct {
	cfg     *config.Config
	http    *http.Server
	backend database.Backend
	pipe    *pipeline.Pipeline
}

func New(cfg *config.Config) (*Server, error) {
	s := &Server{cfg: cfg}

	router, err := s.setupRoutes()
	if err != nil {
		return nil, fmt.Errorf("setup routes: %w", err)
	}

	s.http = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.http.Addr).Msg("listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("graceful shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := s.http.Shutdown(shutdownCtx)

		if s.pipe != nil {
			s.pipe.Close()
		}
		if s.backend != nil {
			if closeErr := s.backend.Close(); closeErr != nil {
				log.Warn().Err(closeErr).Msg("error closing database backend")
			} else {
				log.Info().Msg("database backend closed")
			}
		}

		return err
	case err := <-errCh:
		return err
	}
}
