package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/easypass/easypass-api/internal/dto"
	"github.com/easypass/easypass-api/internal/service"
	appErrors "github.com/easypass/easypass-api/pkg/errors"
	"github.com/easypass/easypass-api/pkg/response"
)

// AdmissionHandler exposes the scanner-facing check-in and check-out
// endpoints. Bodies are read raw because scanners ship several historical
// payload shapes, including bare matric numbers.
type AdmissionHandler struct {
	admission *service.AdmissionService
}

// NewAdmissionHandler constructs AdmissionHandler.
func NewAdmissionHandler(admission *service.AdmissionService) *AdmissionHandler {
	return &AdmissionHandler{admission: admission}
}

// CheckIn godoc
// @Summary Check a student into the exam hall
// @Description Accepts a QR scan payload or bare matric number; idempotent for already checked-in students
// @Tags Admission
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.ScanPayload true "Scan payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /check-in [post]
func (h *AdmissionHandler) CheckIn(c *gin.Context) {
	payload, ok := h.readScan(c)
	if !ok {
		return
	}

	res, err := h.admission.CheckIn(c.Request.Context(), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// CheckOut godoc
// @Summary Check a student out of the exam hall
// @Description Resolves by tag number first, then by student identity; double check-out is a no-op
// @Tags Admission
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.ScanPayload true "Scan payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /checkout [post]
func (h *AdmissionHandler) CheckOut(c *gin.Context) {
	payload, ok := h.readScan(c)
	if !ok {
		return
	}

	res, err := h.admission.CheckOut(c.Request.Context(), payload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// ForceComplete godoc
// @Summary Force-complete a queue entry
// @Description Operator override: completes a checked-in entry, marks a waiting entry absent
// @Tags Admission
// @Produce json
// @Security BearerAuth
// @Param id path string true "Queue entry ID"
// @Success 200 {object} response.Envelope
// @Router /check-in/force-complete/{id} [post]
func (h *AdmissionHandler) ForceComplete(c *gin.Context) {
	res, err := h.admission.ForceComplete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

func (h *AdmissionHandler) readScan(c *gin.Context) (dto.ScanPayload, bool) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "failed to read request body"))
		return dto.ScanPayload{}, false
	}
	return dto.ParseScanPayload(raw), true
}
