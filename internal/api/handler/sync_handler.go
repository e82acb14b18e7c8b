package handler

import (
	"errors"
	"net/http"

	"github.com/devlin/erpmirror/internal/logger"
	"github.com/devlin/erpmirror/internal/service"
	"github.com/gin-gonic/gin"
)

// SyncHandler exposes the sync trigger and status endpoints.
type SyncHandler struct {
	orchestrator *service.Orchestrator
	logger       *logger.Logger
}

// NewSyncHandler creates a new sync handler.
// Parameters:
//   - orchestrator: sync orchestrator instance.
//   - log: logger instance.
// Returns:
//   - *SyncHandler: initialized handler.
func NewSyncHandler(orchestrator *service.Orchestrator, log *logger.Logger) *SyncHandler {
	return &SyncHandler{
		orchestrator: orchestrator,
		logger:       log,
	}
}

// TriggerResponse is the fire-and-forget trigger API response.
type TriggerResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// TriggerSync starts a full sync run in the background and returns its job id.
// A second trigger while a run is in flight is rejected with 409.
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	run, err := h.orchestrator.TriggerFullSync(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrSyncInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": "a sync run is already in progress"})
			return
		}
		logger.CtxError(c.Request.Context(), "Failed to start sync run: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start sync run"})
		return
	}

	c.JSON(http.StatusAccepted, TriggerResponse{
		JobID:   run.ID,
		Status:  string(run.Status),
		Message: "full sync started",
	})
}

// GetStatus returns the latest run projection plus current mirror counts.
func (h *SyncHandler) GetStatus(c *gin.Context) {
	report, err := h.orchestrator.GetSyncStatus(c.Request.Context())
	if err != nil {
		logger.CtxError(c.Request.Context(), "Failed to build sync status: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sync status"})
		return
	}
	c.JSON(http.StatusOK, report)
}
