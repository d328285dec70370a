package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campusflow/nodues-api/internal/dto"
	"github.com/campusflow/nodues-api/internal/models"
	appErrors "github.com/campusflow/nodues-api/pkg/errors"
	"github.com/campusflow/nodues-api/pkg/response"
)

type integrityService interface {
	ScanOrphans(ctx context.Context) ([]dto.OrphanReport, error)
	Repair(ctx context.Context, claims *models.JWTClaims, applicationID string) (*dto.RepairResult, error)
}

// AdminHandler exposes operational endpoints for administrators.
type AdminHandler struct {
	integrity integrityService
}

// NewAdminHandler constructs the handler.
func NewAdminHandler(integrity integrityService) *AdminHandler {
	return &AdminHandler{integrity: integrity}
}

type repairRequest struct {
	ApplicationID string `json:"application_id"`
}

// Orphans godoc
// @Summary List applications missing department status rows
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/integrity/orphans [get]
func (h *AdminHandler) Orphans(c *gin.Context) {
	reports, err := h.integrity.ScanOrphans(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reports, nil, map[string]interface{}{"orphan_count": len(reports)})
}

// Repair godoc
// @Summary Insert missing status rows and recompute aggregates
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body repairRequest false "Optional single application target"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/integrity/repair [post]
func (h *AdminHandler) Repair(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req repairRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid repair payload"))
			return
		}
	}
	result, err := h.integrity.Repair(c.Request.Context(), claims, req.ApplicationID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
