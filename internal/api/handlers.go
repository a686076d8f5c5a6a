package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/datastore"
	"github.com/dp-IED/Marks-and-Spencer-Reduced-Predictor/internal/errors"
)

// errorResponse is the uniform error body for all endpoints.
type errorResponse struct {
	Error string `json:"error"`
}

// GetPrediction serves the current reduction probability for one product.
func (c *Controller) GetPrediction(ctx echo.Context) error {
	productID := ctx.Param("product_id")

	p, err := c.prediction.GetProbability(productID)
	if err != nil {
		if errors.IsNotFound(err) {
			return ctx.JSON(http.StatusNotFound, errorResponse{Error: "no prediction for product " + productID})
		}
		c.logger.Error("prediction lookup failed", "product", productID, "error", err)
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "prediction lookup failed"})
	}
	return ctx.JSON(http.StatusOK, p)
}

// GetPredictionHistory serves current and superseded probabilities for one
// product, newest first.
func (c *Controller) GetPredictionHistory(ctx echo.Context) error {
	productID := ctx.Param("product_id")
	limit, _ := strconv.Atoi(ctx.QueryParam("limit"))

	history, err := c.prediction.GetHistory(productID, limit)
	if err != nil {
		c.logger.Error("prediction history lookup failed", "product", productID, "error", err)
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "prediction history lookup failed"})
	}
	return ctx.JSON(http.StatusOK, history)
}

// TriggerRefresh starts a background prediction refresh. An in-flight
// refresh yields 409; callers retry after it completes.
func (c *Controller) TriggerRefresh(ctx echo.Context) error {
	force := ctx.QueryParam("force") == "true"

	if err := c.prediction.TriggerRefresh(force); err != nil {
		if errors.IsCategory(err, errors.CategoryConflict) {
			return ctx.JSON(http.StatusConflict, errorResponse{Error: "a refresh is already in flight"})
		}
		c.logger.Error("refresh trigger failed", "error", err)
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "refresh trigger failed"})
	}
	return ctx.JSON(http.StatusAccepted, map[string]string{"status": "refresh started"})
}

// modelInfo is the served view of the active model version.
type modelInfo struct {
	VersionID           string    `json:"version_id"`
	TrainedAt           time.Time `json:"trained_at"`
	TrainingSampleCount int       `json:"training_sample_count"`
	AUC                 float64   `json:"auc"`
	FeatureImportance   string    `json:"feature_importance"`
}

// GetActiveModel serves metadata about the model currently answering
// probability requests.
func (c *Controller) GetActiveModel(ctx echo.Context) error {
	active := c.prediction.Active()
	if active == nil {
		return ctx.JSON(http.StatusNotFound, errorResponse{Error: "no model trained yet"})
	}
	return ctx.JSON(http.StatusOK, modelInfo{
		VersionID:           active.Record.VersionID,
		TrainedAt:           active.Record.TrainedAt,
		TrainingSampleCount: active.Record.TrainingSampleCount,
		AUC:                 active.Record.AUC,
		FeatureImportance:   active.Record.FeatureImportance,
	})
}

// ListDetections serves identification results, newest first, narrowed by
// the optional start, end, branch, category and limit query parameters.
func (c *Controller) ListDetections(ctx echo.Context) error {
	filter, err := parseDetectionFilter(ctx)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	results, err := c.store.SearchDetections(filter)
	if err != nil {
		c.logger.Error("detection search failed", "error", err)
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "detection search failed"})
	}
	return ctx.JSON(http.StatusOK, results)
}

// GetDetection serves one identification result by record id.
func (c *Controller) GetDetection(ctx echo.Context) error {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, errorResponse{Error: "detection id must be numeric"})
	}

	result, err := c.store.GetDetection(uint(id))
	if err != nil {
		if errors.IsNotFound(err) {
			return ctx.JSON(http.StatusNotFound, errorResponse{Error: "detection not found"})
		}
		c.logger.Error("detection lookup failed", "id", id, "error", err)
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "detection lookup failed"})
	}
	return ctx.JSON(http.StatusOK, result)
}

// GetStats serves aggregate statistics, cached for a minute to keep the
// grouping queries off the hot path.
func (c *Controller) GetStats(ctx echo.Context) error {
	if cached, ok := c.cache.Get(statsCacheKey); ok {
		return ctx.JSON(http.StatusOK, cached)
	}

	stats, err := c.store.Stats()
	if err != nil {
		c.logger.Error("stats aggregation failed", "error", err)
		return ctx.JSON(http.StatusInternalServerError, errorResponse{Error: "stats aggregation failed"})
	}
	c.cache.SetDefault(statsCacheKey, stats)
	return ctx.JSON(http.StatusOK, stats)
}

// Healthz reports liveness and basic readiness signals.
func (c *Controller) Healthz(ctx echo.Context) error {
	body := map[string]any{
		"status":  "ok",
		"version": c.settings.Version,
	}
	if active := c.prediction.Active(); active != nil {
		body["model_version"] = active.Record.VersionID
	}
	return ctx.JSON(http.StatusOK, body)
}

func parseDetectionFilter(ctx echo.Context) (*datastore.DetectionFilter, error) {
	filter := &datastore.DetectionFilter{
		BranchID: ctx.QueryParam("branch"),
		Category: ctx.QueryParam("category"),
	}

	if v := ctx.QueryParam("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, errors.ValidationError("start must be RFC3339")
		}
		filter.Start = t
	}
	if v := ctx.QueryParam("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, errors.ValidationError("end must be RFC3339")
		}
		filter.End = t
	}
	if v := ctx.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, errors.ValidationError("limit must be a non-negative integer")
		}
		filter.Limit = n
	}
	return filter, nil
}
