// Package api serves the read-only operational status surface over HTTP.
package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"linkedin-outreach/internal/actions"
	"linkedin-outreach/internal/models"
)

// StatusSource reports the engine's live status
type StatusSource interface {
	Status() (actions.Status, error)
}

// ProxySource reports the allocator's cached proxies
type ProxySource interface {
	Snapshot() []models.ProxyResource
}

// CampaignSource looks up campaigns; a missing campaign is nil, nil
type CampaignSource interface {
	Get(id string) (*models.Campaign, error)
}

// StatsSource returns the latest stored snapshot; none is nil, nil
type StatsSource interface {
	Latest(campaignID string) (*models.StatsSnapshot, error)
}

// Deps are the read models behind the routes
type Deps struct {
	Status    StatusSource
	Proxies   ProxySource
	Campaigns CampaignSource
	Stats     StatsSource
}

// StatusResponse is the body of GET /status
type StatusResponse struct {
	actions.Status
	Proxies []models.ProxyResource `json:"proxies"`
}

// CampaignStatsResponse is the body of GET /campaigns/:id/stats
type CampaignStatsResponse struct {
	Campaign *models.Campaign      `json:"campaign"`
	Snapshot *models.StatsSnapshot `json:"snapshot,omitempty"`
}

// Server is the fiber app with its handlers
type Server struct {
	app    *fiber.App
	deps   Deps
	logger zerolog.Logger
	now    func() time.Time
}

// New builds the app and registers the routes
func New(deps Deps, logger zerolog.Logger) *Server {
	s := &Server{
		deps:   deps,
		logger: logger.With().Str("module", "api").Logger(),
		now:    time.Now,
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "outreach",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(s.logRequests)

	s.app.Get("/healthz", s.healthz)
	s.app.Get("/status", s.status)
	s.app.Get("/campaigns/:id/stats", s.campaignStats)

	return s
}

// App exposes the fiber app, mainly for tests
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens on addr until ctx is done, then shuts down
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Status API listening")
		errCh <- s.app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(5 * time.Second); err != nil {
			s.logger.Warn().Err(err).Msg("Status API shutdown failed")
		}
		<-errCh
		return nil
	}
}

func (s *Server) healthz(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"time":   s.now().UTC(),
	})
}

func (s *Server) status(c *fiber.Ctx) error {
	st, err := s.deps.Status.Status()
	if err != nil {
		return err
	}

	resp := StatusResponse{Status: st, Proxies: []models.ProxyResource{}}
	if s.deps.Proxies != nil {
		resp.Proxies = s.deps.Proxies.Snapshot()
	}
	return c.JSON(resp)
}

func (s *Server) campaignStats(c *fiber.Ctx) error {
	id := c.Params("id")

	campaign, err := s.deps.Campaigns.Get(id)
	if err != nil {
		return err
	}
	if campaign == nil {
		return fiber.NewError(fiber.StatusNotFound, "Campaign not found")
	}

	snap, err := s.deps.Stats.Latest(id)
	if err != nil {
		return err
	}
	return c.JSON(CampaignStatsResponse{Campaign: campaign, Snapshot: snap})
}

// handleError renders every failure as {"error": ...}; internal details stay in the log
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal server error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	} else {
		s.logger.Error().Err(err).Str("path", c.Path()).Msg("Request failed")
	}

	return c.Status(code).JSON(fiber.Map{"error": msg})
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := s.now()
	err := c.Next()
	s.logger.Debug().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", c.Response().StatusCode()).
		Dur("took", s.now().Sub(start)).
		Msg("Request served")
	return err
}
