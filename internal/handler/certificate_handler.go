package handler

import (
	"context"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/campusflow/nodues-api/internal/dto"
	"github.com/campusflow/nodues-api/internal/models"
	appErrors "github.com/campusflow/nodues-api/pkg/errors"
	"github.com/campusflow/nodues-api/pkg/response"
)

type certificateService interface {
	DownloadToken(ctx context.Context, claims *models.JWTClaims, applicationID string) (*dto.CertificateDownload, error)
	Open(ctx context.Context, token string) (*os.File, *models.Certificate, error)
	Verify(ctx context.Context, serial string) (*dto.CertificateVerification, error)
}

// CertificateHandler serves certificate downloads and public verification.
type CertificateHandler struct {
	certificates certificateService
}

// NewCertificateHandler constructs the handler.
func NewCertificateHandler(certificates certificateService) *CertificateHandler {
	return &CertificateHandler{certificates: certificates}
}

// DownloadLink godoc
// @Summary Get a signed, time-limited certificate download link
// @Tags Certificates
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /applications/{id}/certificate [get]
func (h *CertificateHandler) DownloadLink(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	download, err := h.certificates.DownloadToken(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	download.URL = "/api/v1/certificates/" + download.Token
	response.JSON(c, http.StatusOK, download, nil)
}

// Download godoc
// @Summary Download a certificate PDF with a signed token
// @Tags Certificates
// @Produce application/pdf
// @Param token path string true "Signed download token"
// @Success 200
// @Router /certificates/{token} [get]
func (h *CertificateHandler) Download(c *gin.Context) {
	file, cert, err := h.certificates.Open(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	info, statErr := file.Stat()
	if statErr != nil {
		response.Error(c, appErrors.Wrap(statErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat certificate file"))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+cert.Serial+`.pdf"`)
	c.DataFromReader(http.StatusOK, info.Size(), "application/pdf", file, nil)
}

// Verify godoc
// @Summary Publicly verify a certificate by serial number
// @Tags Certificates
// @Produce json
// @Param serial path string true "Certificate serial"
// @Success 200 {object} response.Envelope
// @Router /certificates/verify/{serial} [get]
func (h *CertificateHandler) Verify(c *gin.Context) {
	result, err := h.certificates.Verify(c.Request.Context(), c.Param("serial"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
