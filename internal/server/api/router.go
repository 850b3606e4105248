package api

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bloomshield/internal/server/config"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))
	e.Use(RequestLogger())
	e.Use(Metrics())

	// Health, stats & metrics
	e.GET("/health", handler.HandleHealth)
	e.GET("/api/stats", handler.HandleStats)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// Stub ledger
	e.POST("/api/blockchain/timestamp", handler.HandleTimestamp)
	e.GET("/api/blockchain/timestamp", handler.HandleVerify)

	// Protect (rate-limited)
	e.POST("/api/protect", handler.HandleProtect, RateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))

	// Lookups & download
	e.GET("/api/protections", handler.HandleFindProtections)
	e.GET("/api/protections/:id", handler.HandleGetProtection)
	e.GET("/api/protections/:id/file", handler.HandleDownload)

	return e
}
