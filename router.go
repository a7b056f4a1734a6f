package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/KyahWill/journal-app-sub001/pkg/config"
	"github.com/KyahWill/journal-app-sub001/pkg/db"
	"github.com/KyahWill/journal-app-sub001/pkg/handler"
	"github.com/KyahWill/journal-app-sub001/pkg/service"
	"github.com/KyahWill/journal-app-sub001/pkg/utils"
	"github.com/KyahWill/journal-app-sub001/pkg/voice"
	"gorm.io/gorm"
)

type Server struct {
	ginEngine *gin.Engine
	logger    *slog.Logger
	cfg       *config.AppConfig
	port      int
}

func NewServer(cfg *config.AppConfig, database *gorm.DB) (*Server, error) {
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{
		"http://localhost:3000", "http://127.0.0.1:3000",
		"http://localhost:5173", "http://127.0.0.1:5173",
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	ginEngine.Use(cors.New(corsConfig))

	server := &Server{
		ginEngine: ginEngine,
		logger:    utils.GetLogger(),
		cfg:       cfg,
		port:      cfg.Port(),
	}

	if err := server.setupRoutes(database); err != nil {
		return nil, err
	}
	return server, nil
}

// Start binds the listener first so a busy port fails fast, then serves
// until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host(), s.port)
	srv := &http.Server{Addr: addr, Handler: s.ginEngine}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	}
	s.logger.Info("Server listening", "addr", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errChan
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) setupRoutes(database *gorm.DB) error {
	metricsService := service.NewMetricsService()
	goalService := service.NewGoalService(database)

	retrievalService, err := s.buildRetrievalService()
	if err != nil {
		// Retrieval is an enhancement; the coach works without it.
		s.logger.Warn("Retrieval service unavailable, semantic search disabled", "error", err)
		retrievalService = nil
	}

	journalService := service.NewJournalService(database, retrievalService)

	usageService := service.NewUsageService(database, map[string]int{
		db.ActionVoiceCoachSession: s.cfg.SessionsPerDay(),
	})

	platform := voice.NewClient(s.cfg.VoiceBaseURL(), s.cfg.VoiceAPIKey())
	personalityService := service.NewPersonalityService(database, platform, metricsService, s.cfg.DefaultAgentID())

	var retriever service.Retriever
	if retrievalService != nil {
		retriever = retrievalService
	}
	contextService := service.NewContextService(goalService, journalService, retriever, metricsService)

	sessionService := service.NewVoiceSessionService(
		database, usageService, personalityService, contextService,
		platform, goalService, metricsService,
	)
	conversationService := service.NewConversationService(database)

	var chatService *service.CoachChatService
	if s.cfg.ModelAPIKey() != "" {
		chatService = service.NewCoachChatService(service.ChatModelConfig{
			BaseURL: s.cfg.ModelBaseURL(),
			APIKey:  s.cfg.ModelAPIKey(),
			Model:   s.cfg.ModelName(),
		}, personalityService, contextService, metricsService)
	}

	coachHandler := handler.NewVoiceCoachHandler(
		database, sessionService, conversationService, personalityService, chatService, metricsService,
		s.cfg.VoiceAPIKey() != "", retrievalService != nil,
	)

	// Health stays reachable without a token.
	s.ginEngine.GET("/voice-coach/health", coachHandler.Health)

	authed := s.ginEngine.Group("/")
	authed.Use(handler.AuthRequired(s.cfg.JWTSecret()))
	coachHandler.RegisterRoutes(authed)

	return nil
}

func (s *Server) buildRetrievalService() (*service.RetrievalService, error) {
	vectorPath, err := s.cfg.VectorStorePath()
	if err != nil {
		return nil, err
	}

	retrievalConfig := service.DefaultRetrievalConfig()
	retrievalConfig.VectorStorePath = vectorPath
	retrievalConfig.EmbeddingProvider = s.cfg.EmbeddingProvider()
	retrievalConfig.EmbeddingModel = s.cfg.EmbeddingModel()
	retrievalConfig.OpenAIBaseURL = s.cfg.ModelBaseURL()
	retrievalConfig.OllamaURL = s.cfg.OllamaURL()

	return service.NewRetrievalService(retrievalConfig)
}
