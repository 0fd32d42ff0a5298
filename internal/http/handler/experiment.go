package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"searchlens.app/analyzer/internal/http/middleware"
	"searchlens.app/analyzer/internal/model"
	"searchlens.app/analyzer/internal/service"
)

type ExperimentHandler struct {
	experiments service.ExperimentService
}

func NewExperimentHandler(experiments service.ExperimentService) *ExperimentHandler {
	return &ExperimentHandler{experiments: experiments}
}

type experimentResponse struct {
	ID        string              `json:"id"`
	PageURL   string              `json:"page_url"`
	Status    string              `json:"status"`
	StartDate string              `json:"start_date"`
	EndDate   *string             `json:"end_date,omitempty"`
	Before    model.MetricSample  `json:"before"`
	After     *model.MetricSample `json:"after,omitempty"`
	CTRChange *float64            `json:"ctr_change,omitempty"`
}

func toExperimentResponse(exp *model.Experiment) experimentResponse {
	resp := experimentResponse{
		ID:        strconv.FormatInt(exp.ID, 10),
		PageURL:   exp.PageURL,
		Status:    string(exp.Status),
		StartDate: exp.StartDate.Format(time.RFC3339),
		Before:    exp.Before,
		After:     exp.After,
	}
	if exp.EndDate != nil {
		end := exp.EndDate.Format(time.RFC3339)
		resp.EndDate = &end
	}
	if change, err := exp.CTRChange(); err == nil {
		resp.CTRChange = &change
	}
	return resp
}

type startExperimentRequest struct {
	PageURL string `json:"page_url" binding:"required"`
}

func (h *ExperimentHandler) Start(c *gin.Context) {
	ctx := c.Request.Context()
	ws := middleware.GetWorkspace(ctx)

	var req startExperimentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page_url is required"})
		return
	}

	exp, err := h.experiments.Start(ctx, ws.ID, req.PageURL)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNoActiveData):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrMissingDateRange):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "active snapshot needs a date range first"})
		case errors.Is(err, service.ErrPageNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "page not found in active snapshot"})
		default:
			slog.ErrorContext(ctx, "failed to start experiment", "error", err, "page_url", req.PageURL)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start experiment"})
		}
		return
	}

	c.JSON(http.StatusCreated, toExperimentResponse(exp))
}

func (h *ExperimentHandler) Complete(c *gin.Context) {
	ctx := c.Request.Context()
	ws := middleware.GetWorkspace(ctx)

	experimentID, err := strconv.ParseInt(c.Param("experimentId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid experiment ID"})
		return
	}

	exp, err := h.experiments.Complete(ctx, ws.ID, experimentID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrExperimentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "experiment not found"})
		case errors.Is(err, service.ErrExperimentNotRunning):
			c.JSON(http.StatusConflict, gin.H{"error": "experiment is not running"})
		case errors.Is(err, service.ErrNoActiveData):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, service.ErrPageNotFound):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "page missing from current data"})
		default:
			slog.ErrorContext(ctx, "failed to complete experiment", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to complete experiment"})
		}
		return
	}

	c.JSON(http.StatusOK, toExperimentResponse(exp))
}

func (h *ExperimentHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	ws := middleware.GetWorkspace(ctx)

	experimentID, err := strconv.ParseInt(c.Param("experimentId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid experiment ID"})
		return
	}

	exp, err := h.experiments.Get(ctx, ws.ID, experimentID)
	if err != nil {
		if errors.Is(err, service.ErrExperimentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "experiment not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to get experiment", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get experiment"})
		return
	}

	c.JSON(http.StatusOK, toExperimentResponse(exp))
}

func (h *ExperimentHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	ws := middleware.GetWorkspace(ctx)

	exps, err := h.experiments.List(ctx, ws.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list experiments", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list experiments"})
		return
	}

	resp := make([]experimentResponse, len(exps))
	for i := range exps {
		resp[i] = toExperimentResponse(&exps[i])
	}
	c.JSON(http.StatusOK, gin.H{"experiments": resp})
}
