package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/epd-weather/internal/api/http"
	"github.com/i474232898/epd-weather/internal/logger"
	"github.com/i474232898/epd-weather/internal/scheduler"
	"github.com/i474232898/epd-weather/internal/store"
	"github.com/i474232898/epd-weather/internal/weather"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Refresh weather periodically and serve it over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup(cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		// In-memory store with configured retention.
		memStore := store.NewMemoryStore(cfg.StoreMaxHistory, cfg.StoreMaxAge)

		// Core service orchestrating the Open-Meteo client and store.
		service := weather.NewService(memStore, newClient(cfg), cfg.Fetch, cfg.Breaker)

		// One refresh may run every attempt of both endpoints.
		perFetch := time.Duration(cfg.Fetch.RetryAttempts) * (cfg.Fetch.Timeout + cfg.Fetch.RetryDelay)
		sched := scheduler.New(cfg.Locations, cfg.FetchInterval, 2*perFetch, service)
		if err := sched.Start(); err != nil {
			return err
		}
		defer sched.Stop()

		// Basic app configuration
		app := fiber.New(fiber.Config{
			AppName:               "epd-weather",
			DisableStartupMessage: true,
			ReadTimeout:           10 * time.Second,
			WriteTimeout:          10 * time.Second,
			ErrorHandler: func(c *fiber.Ctx, err error) error {
				// Centralized error response
				code := fiber.StatusInternalServerError
				if e, ok := err.(*fiber.Error); ok {
					code = e.Code
				}
				return c.Status(code).JSON(fiber.Map{
					"error":   true,
					"message": err.Error(),
				})
			},
		})

		// Global middleware
		app.Use(fiberlogger.New(fiberlogger.Config{Output: logger.Log.Writer()}))
		app.Use(recover.New())

		// Basic health endpoint
		app.Get("/health", func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{
				"status":  "ok",
				"service": "epd-weather",
			})
		})

		// API routes.
		httpapi.RegisterRoutes(app, service)

		go func() {
			if err := app.Listen(":" + cfg.Port); err != nil {
				logger.Log.WithError(err).Warn("fiber server stopped")
			}
		}()
		logger.Log.Infof("listening on :%s", cfg.Port)

		// Wait for termination signal
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Log.WithError(err).Error("error during shutdown")
		}
		return nil
	},
}
