package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campusflow/nodues-api/internal/dto"
	"github.com/campusflow/nodues-api/internal/models"
	appErrors "github.com/campusflow/nodues-api/pkg/errors"
	"github.com/campusflow/nodues-api/pkg/response"
)

type applicationService interface {
	Submit(ctx context.Context, claims *models.JWTClaims, req dto.SubmitApplicationRequest) (*dto.ApplicationView, error)
	MyApplication(ctx context.Context, claims *models.JWTClaims) (*dto.ApplicationView, error)
	Get(ctx context.Context, claims *models.JWTClaims, id string) (*dto.ApplicationView, error)
	List(ctx context.Context, claims *models.JWTClaims, query dto.ApplicationQuery) ([]models.Application, *models.Pagination, error)
}

type approvalService interface {
	RecordDecision(ctx context.Context, claims *models.JWTClaims, applicationID string, req dto.DecisionRequest) (*dto.DecisionResult, error)
}

type reapplicationService interface {
	Reapply(ctx context.Context, claims *models.JWTClaims, applicationID string, req dto.ReapplyRequest) (*dto.ReapplyResult, error)
}

// ApplicationHandler exposes the clearance application endpoints.
type ApplicationHandler struct {
	applications applicationService
	approvals    approvalService
	reapply      reapplicationService
}

// NewApplicationHandler constructs the handler.
func NewApplicationHandler(applications applicationService, approvals approvalService, reapply reapplicationService) *ApplicationHandler {
	return &ApplicationHandler{
		applications: applications,
		approvals:    approvals,
		reapply:      reapply,
	}
}

// Submit godoc
// @Summary Submit a no dues clearance application
// @Tags Applications
// @Accept json
// @Produce json
// @Param payload body dto.SubmitApplicationRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /applications [post]
func (h *ApplicationHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.SubmitApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid application payload"))
		return
	}
	view, err := h.applications.Submit(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, view, nil)
}

// Mine godoc
// @Summary Get the authenticated student's application
// @Tags Applications
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /applications/mine [get]
func (h *ApplicationHandler) Mine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	view, err := h.applications.MyApplication(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// Get godoc
// @Summary Get one application with its per-department status
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	view, err := h.applications.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view, nil)
}

// List godoc
// @Summary List applications for staff dashboards
// @Tags Applications
// @Produce json
// @Param status query string false "Comma separated aggregate statuses"
// @Param pending_for query string false "Department with a pending decision"
// @Param registration_no query string false "Registration number search"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /applications [get]
func (h *ApplicationHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	query := dto.ApplicationQuery{
		PendingFor:     strings.TrimSpace(c.Query("pending_for")),
		RegistrationNo: strings.TrimSpace(c.Query("registration_no")),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		parts := strings.Split(rawStatus, ",")
		statuses := make([]models.ApplicationStatus, 0, len(parts))
		for _, part := range parts {
			part = strings.ToLower(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			statuses = append(statuses, models.ApplicationStatus(part))
		}
		query.Status = statuses
	}
	query.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	query.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))

	apps, pagination, err := h.applications.List(c.Request.Context(), claims, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, pagination)
}

// Decide godoc
// @Summary Record a department's approve/reject decision
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.DecisionRequest true "Decision payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /applications/{id}/decision [post]
func (h *ApplicationHandler) Decide(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid decision payload"))
		return
	}
	result, err := h.approvals.RecordDecision(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Reapply godoc
// @Summary Reapply after a rejection
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.ReapplyRequest true "Reapplication payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /applications/{id}/reapply [post]
func (h *ApplicationHandler) Reapply(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.ReapplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid reapplication payload"))
		return
	}
	result, err := h.reapply.Reapply(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
