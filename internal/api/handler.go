package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/emicklei/go-restful/v3"
	"github.com/rs/zerolog"

	"dialogeval/internal/api/middleware"
	"dialogeval/internal/models"
	"dialogeval/internal/store"
)

// RunService starts run execution.
type RunService interface {
	Start(ctx context.Context, runID int64) error
}

// RunStore is the read/cancel surface the handlers need.
type RunStore interface {
	GetProgress(ctx context.Context, runID int64) (*models.RunProgress, error)
	RequestCancellation(ctx context.Context, runID int64) error
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type StartResponse struct {
	RunID  int64  `json:"run_id"`
	Status string `json:"status"`
}

type Handler struct {
	runs   RunService
	store  RunStore
	logger *zerolog.Logger
}

func NewHandler(runs RunService, runStore RunStore, logger *zerolog.Logger) *Handler {
	return &Handler{
		runs:   runs,
		store:  runStore,
		logger: logger,
	}
}

// POST /api/v1/runs/{run_id}/start
// Execution happens in the background; the response acknowledges the start.
func (h *Handler) StartRun(req *restful.Request, resp *restful.Response) {
	runID, ok := h.runID(req, resp)
	if !ok {
		return
	}

	h.logger.Info().Int64("run_id", runID).Msg("starting run")

	go func() {
		// The run outlives the HTTP request.
		if err := h.runs.Start(context.Background(), runID); err != nil {
			h.logger.Error().Int64("run_id", runID).Err(err).Msg("run execution failed")
		}
	}()

	resp.WriteHeaderAndEntity(http.StatusAccepted, StartResponse{RunID: runID, Status: "started"})
}

// POST /api/v1/runs/{run_id}/cancel
func (h *Handler) CancelRun(req *restful.Request, resp *restful.Response) {
	runID, ok := h.runID(req, resp)
	if !ok {
		return
	}

	if err := h.store.RequestCancellation(req.Request.Context(), runID); err != nil {
		h.logger.Warn().Int64("run_id", runID).Err(err).Msg("cancellation rejected")
		middleware.HandleError(resp, err, http.StatusConflict)
		return
	}

	h.logger.Info().Int64("run_id", runID).Msg("cancellation requested")
	resp.WriteHeaderAndEntity(http.StatusOK, StartResponse{RunID: runID, Status: "cancelling"})
}

// GET /api/v1/runs/{run_id}/progress
func (h *Handler) RunProgress(req *restful.Request, resp *restful.Response) {
	runID, ok := h.runID(req, resp)
	if !ok {
		return
	}

	progress, err := h.store.GetProgress(req.Request.Context(), runID)
	if errors.Is(err, store.ErrRunNotFound) {
		middleware.HandleError(resp, err, http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error().Int64("run_id", runID).Err(err).Msg("failed to read progress")
		middleware.HandleError(resp, err, http.StatusInternalServerError)
		return
	}

	resp.WriteHeaderAndEntity(http.StatusOK, progress)
}

// Health handler GET /api/v1/health
func (h *Handler) Health(req *restful.Request, resp *restful.Response) {
	resp.WriteHeaderAndEntity(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: "1.0.0",
	})
}

func (h *Handler) runID(req *restful.Request, resp *restful.Response) (int64, bool) {
	runID, err := strconv.ParseInt(req.PathParameter("run_id"), 10, 64)
	if err != nil {
		middleware.HandleError(resp, errors.New("run_id must be an integer"), http.StatusBadRequest)
		return 0, false
	}
	return runID, true
}
