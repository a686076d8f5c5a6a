// Package api exposes the HTTP surface: probability serving, refresh
// triggering, detection queries, and operational endpoints.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	gocache "github.com/patrickmn/go-cache"

	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/conf"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/datastore"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/logging"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/observability"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/prediction"
)

const statsCacheKey = "system-stats"

// Controller handles the HTTP API.
type Controller struct {
	Echo       *echo.Echo
	settings   *conf.Settings
	store      datastore.Interface
	prediction *prediction.Service
	metrics    *observability.Metrics
	logger     *slog.Logger
	cache      *gocache.Cache
}

// New assembles the controller and registers all routes. metrics may be nil,
// in which case the metrics endpoint is not registered.
func New(settings *conf.Settings, store datastore.Interface, predictionSvc *prediction.Service, metrics *observability.Metrics) *Controller {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	c := &Controller{
		Echo:       e,
		settings:   settings,
		store:      store,
		prediction: predictionSvc,
		metrics:    metrics,
		logger:     logging.ForService("api"),
		cache:      gocache.New(time.Minute, 5*time.Minute),
	}
	c.registerRoutes()
	return c
}

func (c *Controller) registerRoutes() {
	v1 := c.Echo.Group("/api/v1")

	v1.GET("/predictions/:product_id", c.GetPrediction)
	v1.GET("/predictions/:product_id/history", c.GetPredictionHistory)
	v1.POST("/predictions/refresh", c.TriggerRefresh)
	v1.GET("/model", c.GetActiveModel)

	v1.GET("/detections", c.ListDetections)
	v1.GET("/detections/stats", c.GetStats)
	v1.GET("/detections/:id", c.GetDetection)

	v1.GET("/healthz", c.Healthz)
	c.Echo.GET("/healthz", c.Healthz)
	if c.metrics != nil {
		c.Echo.GET("/metrics", echo.WrapHandler(c.metrics.Handler()))
	}
}

// Start runs the HTTP server until it fails or is shut down.
func (c *Controller) Start() error {
	addr := ":" + c.settings.WebServer.Port
	c.logger.Info("http server starting", "addr", addr)
	if err := c.Echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (c *Controller) Shutdown(ctx context.Context) error {
	return c.Echo.Shutdown(ctx)
}
