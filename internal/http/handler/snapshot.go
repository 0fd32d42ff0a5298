package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"searchlens.app/analyzer/internal/http/middleware"
	"searchlens.app/analyzer/internal/ingest"
	"searchlens.app/analyzer/internal/model"
	"searchlens.app/analyzer/internal/service"
	"searchlens.app/analyzer/internal/view"
)

// maxUploadBytes caps CSV uploads. Search Console exports top the top
// 1000 rows, so anything near this limit is not a real export.
const maxUploadBytes = 16 << 20

type SnapshotHandler struct {
	snapshots   service.SnapshotService
	experiments service.ExperimentService
	insights    service.InsightService
}

func NewSnapshotHandler(
	snapshots service.SnapshotService,
	experiments service.ExperimentService,
	insights service.InsightService,
) *SnapshotHandler {
	return &SnapshotHandler{
		snapshots:   snapshots,
		experiments: experiments,
		insights:    insights,
	}
}

type snapshotResponse struct {
	ID         string             `json:"id"`
	FileName   string             `json:"file_name"`
	PageCount  int                `json:"page_count"`
	HasSummary bool               `json:"has_summary"`
	DateRange  *model.DateRange   `json:"date_range,omitempty"`
	CreatedAt  string             `json:"created_at"`
	Pages      []model.PageRecord `json:"pages,omitempty"`
}

func toSnapshotResponse(snap *model.Snapshot, includePages bool) snapshotResponse {
	resp := snapshotResponse{
		ID:         strconv.FormatInt(snap.ID, 10),
		FileName:   snap.FileName,
		PageCount:  len(snap.Pages),
		HasSummary: snap.PerformanceSummary != nil,
		DateRange:  snap.DateRange,
		CreatedAt:  snap.CreatedAt.Format(time.RFC3339),
	}
	if includePages {
		resp.Pages = snap.Pages
	}
	return resp
}

// Upload ingests a Search Console CSV export as a new snapshot. An
// optional experiment_id form field completes that experiment against
// the fresh data in the same request.
func (h *SnapshotHandler) Upload(c *gin.Context) {
	ctx := c.Request.Context()
	ws := middleware.GetWorkspace(ctx)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	snap, err := h.snapshots.Ingest(ctx, ws.ID, header.Filename, file)
	if err != nil {
		var formatErr *ingest.FormatError
		if errors.As(err, &formatErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": formatErr.Error()})
			return
		}
		slog.ErrorContext(ctx, "failed to ingest snapshot", "error", err, "file_name", header.Filename)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process file"})
		return
	}

	resp := gin.H{"snapshot": toSnapshotResponse(snap, false)}

	if expIDStr := c.PostForm("experiment_id"); expIDStr != "" {
		expID, err := strconv.ParseInt(expIDStr, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid experiment ID"})
			return
		}
		// The new snapshot must be the measured one.
		if err := h.snapshots.SetActive(ctx, ws.ID, snap.ID); err != nil {
			slog.ErrorContext(ctx, "failed to activate snapshot for experiment", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to activate snapshot"})
			return
		}
		exp, err := h.experiments.Complete(ctx, ws.ID, expID)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrExperimentNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "experiment not found"})
			case errors.Is(err, service.ErrExperimentNotRunning):
				c.JSON(http.StatusConflict, gin.H{"error": "experiment is not running"})
			case errors.Is(err, service.ErrPageNotFound):
				c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "experiment page missing from uploaded data"})
			default:
				slog.ErrorContext(ctx, "failed to complete experiment from upload", "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to complete experiment"})
			}
			return
		}
		resp["experiment"] = toExperimentResponse(exp)
	}

	c.JSON(http.StatusCreated, resp)
}

func (h *SnapshotHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	ws := middleware.GetWorkspace(ctx)

	snaps, err := h.snapshots.List(ctx, ws.ID)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list snapshots", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list snapshots"})
		return
	}

	resp := make([]snapshotResponse, len(snaps))
	for i := range snaps {
		resp[i] = toSnapshotResponse(&snaps[i], false)
	}
	c.JSON(http.StatusOK, gin.H{"snapshots": resp})
}

func (h *SnapshotHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	ws := middleware.GetWorkspace(ctx)

	snapshotID, err := strconv.ParseInt(c.Param("snapshotId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot ID"})
		return
	}

	snap, err := h.snapshots.Get(ctx, ws.ID, snapshotID)
	if err != nil {
		if errors.Is(err, service.ErrSnapshotNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to get snapshot", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get snapshot"})
		return
	}

	c.JSON(http.StatusOK, toSnapshotResponse(snap, true))
}

func (h *SnapshotHandler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	ws := middleware.GetWorkspace(ctx)

	snapshotID, err := strconv.ParseInt(c.Param("snapshotId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot ID"})
		return
	}

	if err := h.snapshots.Delete(ctx, ws.ID, snapshotID); err != nil {
		if errors.Is(err, service.ErrSnapshotNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to delete snapshot", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete snapshot"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "snapshot deleted"})
}

func (h *SnapshotHandler) Activate(c *gin.Context) {
	ctx := c.Request.Context()
	ws := middleware.GetWorkspace(ctx)

	snapshotID, err := strconv.ParseInt(c.Param("snapshotId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot ID"})
		return
	}

	if err := h.snapshots.SetActive(ctx, ws.ID, snapshotID); err != nil {
		if errors.Is(err, service.ErrSnapshotNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to activate snapshot", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to activate snapshot"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "snapshot activated"})
}

func (h *SnapshotHandler) Active(c *gin.Context) {
	ctx := c.Request.Context()
	ws := middleware.GetWorkspace(ctx)

	snap, err := h.snapshots.GetActive(ctx, ws.ID)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveData) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		slog.ErrorContext(ctx, "failed to get active snapshot", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get active snapshot"})
		return
	}

	c.JSON(http.StatusOK, toSnapshotResponse(snap, true))
}

type dateRangeRequest struct {
	Start time.Time `json:"start" binding:"required"`
	End   time.Time `json:"end" binding:"required"`
}

func (h *SnapshotHandler) SetDateRange(c *gin.Context) {
	ctx := c.Request.Context()
	ws := middleware.GetWorkspace(ctx)

	snapshotID, err := strconv.ParseInt(c.Param("snapshotId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid snapshot ID"})
		return
	}

	var req dateRangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start and end are required"})
		return
	}

	dr := model.DateRange{Start: req.Start, End: req.End}
	if err := h.snapshots.SetDateRange(ctx, ws.ID, snapshotID, dr); err != nil {
		if errors.Is(err, service.ErrSnapshotNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "snapshot not found"})
			return
		}
		if errors.Is(err, service.ErrInvalidDateRange) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end date must not precede start date"})
			return
		}
		slog.ErrorContext(ctx, "failed to set date range", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to set date range"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "date range updated"})
}

// View projects the active snapshot's pages for display: substring
// filter, opportunity tagging from the stored summary, stable sort.
func (h *SnapshotHandler) View(c *gin.Context) {
	ctx := c.Request.Context()
	ws := middleware.GetWorkspace(ctx)

	snap, err := h.snapshots.GetActive(ctx, ws.ID)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveData) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		slog.ErrorContext(ctx, "failed to get active snapshot", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load view"})
		return
	}

	opts := view.Options{
		Filter:          c.Query("filter"),
		OpportunityOnly: c.Query("opportunities") == "true",
		SortKey:         c.DefaultQuery("sort", view.SortByImpressions),
		Ascending:       c.Query("order") == "asc",
	}

	var opportunities []string
	if snap.PerformanceSummary != nil {
		if summary, err := service.ParseSummary(*snap.PerformanceSummary); err == nil {
			for _, op := range summary.OpportunityPages {
				opportunities = append(opportunities, op.Page)
			}
		}
	}

	rows := view.Project(snap.Pages, opportunities, opts)
	c.JSON(http.StatusOK, gin.H{
		"snapshot_id": strconv.FormatInt(snap.ID, 10),
		"rows":        rows,
		"total":       len(snap.Pages),
	})
}
