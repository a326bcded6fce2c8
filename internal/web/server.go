// Package web serves the leaderboard over HTTP for the web frontend.
package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"cashgame-ledger-bot/internal/config"
	"cashgame-ledger-bot/internal/pkg/db"
	"cashgame-ledger-bot/internal/service"
)

// Server exposes the leaderboard as a small JSON API.
type Server struct {
	statsService *service.StatsService
	pool         *db.Pool
	srv          *http.Server
}

// scoreRow is the frontend leaderboard contract.
type scoreRow struct {
	Username string `json:"username"`
	Score    int64  `json:"score"`
}

// statRow is the detailed leaderboard row.
type statRow struct {
	Username   string `json:"username"`
	TotalIn    int64  `json:"total_in"`
	TotalOut   int64  `json:"total_out"`
	GamesCount int64  `json:"games_count"`
	Score      int64  `json:"score"`
}

// New creates the leaderboard server.
func New(cfg *config.HTTPConfig, statsService *service.StatsService, pool *db.Pool) *Server {
	s := &Server{
		statsService: statsService,
		pool:         pool,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	router.GET("/api/stats", s.handleScores)
	router.GET("/api/scores", s.handleScores)
	router.GET("/api/leaderboard", s.handleLeaderboard)
	router.GET("/healthz", s.handleHealth)

	s.srv = &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	return s
}

// Start runs the server until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.srv.Addr).Msg("Leaderboard API listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// parseFilter validates the filter query parameter, answering 400 on
// anything outside the accepted domain.
func parseFilter(c *gin.Context) (service.Filter, bool) {
	filter, err := service.ParseFilter(c.Query("filter"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "filter must be empty, \"all\" or a 4-digit year"})
		return service.Filter{}, false
	}
	return filter, true
}

// handleScores serves the reduced leaderboard consumed by the frontend.
func (s *Server) handleScores(c *gin.Context) {
	filter, ok := parseFilter(c)
	if !ok {
		return
	}

	scores, err := s.statsService.QueryScores(c.Request.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query scores")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load scores"})
		return
	}

	rows := make([]scoreRow, 0, len(scores))
	for _, sc := range scores {
		rows = append(rows, scoreRow{Username: sc.Username, Score: sc.Score})
	}

	c.JSON(http.StatusOK, rows)
}

// handleLeaderboard serves the detailed per-participant rows.
func (s *Server) handleLeaderboard(c *gin.Context) {
	filter, ok := parseFilter(c)
	if !ok {
		return
	}

	stats, err := s.statsService.QueryStats(c.Request.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}

	rows := make([]statRow, 0, len(stats))
	for _, st := range stats {
		rows = append(rows, statRow{
			Username:   st.Username,
			TotalIn:    st.TotalIn,
			TotalOut:   st.TotalOut,
			GamesCount: st.GamesCount,
			Score:      st.Score(),
		})
	}

	c.JSON(http.StatusOK, rows)
}

// handleHealth answers liveness probes with a database ping.
func (s *Server) handleHealth(c *gin.Context) {
	if err := s.pool.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
