package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/easypass/easypass-api/internal/dto"
	"github.com/easypass/easypass-api/internal/models"
	"github.com/easypass/easypass-api/internal/service"
	appErrors "github.com/easypass/easypass-api/pkg/errors"
	"github.com/easypass/easypass-api/pkg/response"
)

// QueueHandler exposes the queue ledger endpoints.
type QueueHandler struct {
	queues    *service.QueueService
	reconcile *service.ReconciliationService
}

// NewQueueHandler constructs QueueHandler.
func NewQueueHandler(queues *service.QueueService, reconcile *service.ReconciliationService) *QueueHandler {
	return &QueueHandler{queues: queues, reconcile: reconcile}
}

// Join godoc
// @Summary Join an exam queue
// @Tags Queues
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.JoinQueueRequest true "Join payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /queues [post]
func (h *QueueHandler) Join(c *gin.Context) {
	var req dto.JoinQueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid join payload"))
		return
	}

	entry, err := h.queues.Join(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, entry)
}

// List godoc
// @Summary List queue entries
// @Tags Queues
// @Produce json
// @Security BearerAuth
// @Param exam query string false "Filter by exam ID"
// @Param student query string false "Filter by student ID"
// @Param status query string false "Filter by status"
// @Success 200 {object} response.Envelope
// @Router /queues [get]
func (h *QueueHandler) List(c *gin.Context) {
	filter := models.QueueFilter{
		ExamID:    c.Query("exam"),
		StudentID: c.Query("student"),
	}
	if raw := c.Query("status"); raw != "" {
		status := models.QueueStatus(raw)
		if !status.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown queue status"))
			return
		}
		filter.Status = &status
	}

	entries, err := h.queues.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, entries, nil)
}

// Status godoc
// @Summary Queue status for a student
// @Description Returns the student's active queue entry with batch position and wait estimate
// @Tags Queues
// @Produce json
// @Security BearerAuth
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /queues/status/{studentId} [get]
func (h *QueueHandler) Status(c *gin.Context) {
	status, err := h.queues.Status(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// VerifyStatus godoc
// @Summary Verify a cached queue entry is still active
// @Tags Queues
// @Produce json
// @Security BearerAuth
// @Param id path string true "Queue entry ID"
// @Success 200 {object} response.Envelope
// @Router /queues/verify-status/{id} [get]
func (h *QueueHandler) VerifyStatus(c *gin.Context) {
	res, err := h.reconcile.Verify(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// ClearStatus godoc
// @Summary Clear a student's queue status
// @Description Deletes a waiting entry; clearing a checked-in entry requires force
// @Tags Queues
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.ClearStatusRequest true "Clear payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /queues/clear-status [post]
func (h *QueueHandler) ClearStatus(c *gin.Context) {
	var req dto.ClearStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid clear-status payload"))
		return
	}

	res, err := h.reconcile.ClearStatus(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Delete godoc
// @Summary Remove a waiting queue entry
// @Tags Queues
// @Produce json
// @Security BearerAuth
// @Param id path string true "Queue entry ID"
// @Success 204 "No Content"
// @Failure 409 {object} response.Envelope
// @Router /queues/{id} [delete]
func (h *QueueHandler) Delete(c *gin.Context) {
	if err := h.queues.Remove(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
