// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api exposes the moderation operations over HTTP with JSON bodies
// and provides a typed client for them.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/blinklabs-io/warden/database/models"
	"github.com/blinklabs-io/warden/database/types"
	"github.com/blinklabs-io/warden/mute"
	"github.com/google/uuid"
	"github.com/rs/cors"
)

const requestIDHeader = "X-Request-Id"

// Moderator is the set of moderation operations served by the API
type Moderator interface {
	Mute(context.Context, mute.MuteRequest) (*models.Mute, error)
	Unmute(ctx context.Context, userID, guildID types.Snowflake) (*models.Mute, error)
	ActiveMute(ctx context.Context, userID, guildID types.Snowflake) (*models.Mute, error)
	DeleteMute(ctx context.Context, id uint) (*models.Mute, error)
	ListMutes(context.Context, models.MuteFilter) ([]models.Mute, error)
	Warn(context.Context, mute.WarnRequest) (*models.Warn, error)
	Warns(ctx context.Context, userID, guildID types.Snowflake) ([]models.Warn, error)
	Guild(ctx context.Context, guildID types.Snowflake) (*models.Guild, error)
	SetMuteRole(ctx context.Context, guildID types.Snowflake, roleID *types.Snowflake) error
	SetModRole(ctx context.Context, guildID types.Snowflake, roleID *types.Snowflake) error
}

type ServerConfig struct {
	ListenAddress string
	// AllowedOrigins enables CORS for browser clients when not empty
	AllowedOrigins []string
}

// Server is the HTTP command layer
type Server struct {
	config     ServerConfig
	logger     *slog.Logger
	moderator  Moderator
	httpServer *http.Server
	listenAddr net.Addr
	mu         sync.Mutex
}

func NewServer(cfg ServerConfig, moderator Moderator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	logger = logger.With("component", "api")
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	return &Server{
		config:    cfg,
		logger:    logger,
		moderator: moderator,
	}
}

// Handler returns the routed HTTP handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/guilds/{guild}/mutes", s.handleListMutes)
	mux.HandleFunc("POST /v1/guilds/{guild}/mutes", s.handleMute)
	mux.HandleFunc("GET /v1/guilds/{guild}/members/{user}/mute", s.handleActiveMute)
	mux.HandleFunc("DELETE /v1/guilds/{guild}/members/{user}/mute", s.handleUnmute)
	mux.HandleFunc("DELETE /v1/mutes/{id}", s.handleDeleteMute)
	mux.HandleFunc("POST /v1/guilds/{guild}/warns", s.handleWarn)
	mux.HandleFunc("GET /v1/guilds/{guild}/members/{user}/warns", s.handleWarns)
	mux.HandleFunc("GET /v1/guilds/{guild}/mute-role", s.handleGetRole(muteRole))
	mux.HandleFunc("PUT /v1/guilds/{guild}/mute-role", s.handleSetRole(muteRole))
	mux.HandleFunc("DELETE /v1/guilds/{guild}/mute-role", s.handleClearRole(muteRole))
	mux.HandleFunc("GET /v1/guilds/{guild}/mod-role", s.handleGetRole(modRole))
	mux.HandleFunc("PUT /v1/guilds/{guild}/mod-role", s.handleSetRole(modRole))
	mux.HandleFunc("DELETE /v1/guilds/{guild}/mod-role", s.handleClearRole(modRole))
	var handler http.Handler = s.requestLogger(mux)
	if len(s.config.AllowedOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins: s.config.AllowedOrigins,
			AllowedMethods: []string{
				http.MethodGet,
				http.MethodPost,
				http.MethodPut,
				http.MethodDelete,
			},
			AllowedHeaders: []string{"Content-Type", requestIDHeader},
			ExposedHeaders: []string{requestIDHeader},
		}).Handler(handler)
	}
	return handler
}

// Start binds the listener and serves in the background until Stop is
// called or ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	server := &http.Server{
		Addr:              s.config.ListenAddress,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 60 * time.Second,
	}
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen for API server: %w", err)
	}
	s.httpServer = server
	s.listenAddr = ln.Addr()
	s.mu.Unlock()
	go func() {
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	s.logger.Info("API listener started on " + ln.Addr().String())
	go func() {
		<-ctx.Done()
		//nolint:contextcheck
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		//nolint:contextcheck
		if err := s.Stop(shutdownCtx); err != nil {
			s.logger.Error("failed to shutdown API server on context cancellation", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound listen address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listenAddr
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Debug("shutting down API server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown API server: %w", err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// requestLogger tags each request with an id and logs its outcome
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set(requestIDHeader, requestID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		s.logger.Debug(
			"handled request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).String(),
		)
	})
}
