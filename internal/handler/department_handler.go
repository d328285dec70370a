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

type registryService interface {
	List(ctx context.Context) ([]models.Department, error)
	Create(ctx context.Context, req dto.CreateDepartmentRequest, actor *models.JWTClaims) (*models.Department, error)
	Update(ctx context.Context, id string, req dto.UpdateDepartmentRequest, actor *models.JWTClaims) (*models.Department, error)
}

// DepartmentHandler exposes department registry administration.
type DepartmentHandler struct {
	registry registryService
}

// NewDepartmentHandler constructs the handler.
func NewDepartmentHandler(registry registryService) *DepartmentHandler {
	return &DepartmentHandler{registry: registry}
}

// List godoc
// @Summary List all clearing departments
// @Tags Departments
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /departments [get]
func (h *DepartmentHandler) List(c *gin.Context) {
	departments, err := h.registry.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, departments, nil)
}

// Create godoc
// @Summary Register a new clearing department
// @Tags Departments
// @Accept json
// @Produce json
// @Param payload body dto.CreateDepartmentRequest true "Department payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /departments [post]
func (h *DepartmentHandler) Create(c *gin.Context) {
	var req dto.CreateDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid department payload"))
		return
	}
	dept, err := h.registry.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, dept, nil)
}

// Update godoc
// @Summary Update or deactivate a department
// @Tags Departments
// @Accept json
// @Produce json
// @Param id path string true "Department ID"
// @Param payload body dto.UpdateDepartmentRequest true "Department payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /departments/{id} [patch]
func (h *DepartmentHandler) Update(c *gin.Context) {
	var req dto.UpdateDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid department payload"))
		return
	}
	dept, err := h.registry.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dept, nil)
}
