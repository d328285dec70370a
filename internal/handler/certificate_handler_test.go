package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campusflow/nodues-api/internal/dto"
	"github.com/campusflow/nodues-api/internal/middleware"
	"github.com/campusflow/nodues-api/internal/models"
	appErrors "github.com/campusflow/nodues-api/pkg/errors"
)

type certificateServiceMock struct {
	download   *dto.CertificateDownload
	downErr    error
	verifyResp *dto.CertificateVerification
	verifyErr  error
	lastSerial string
}

func (m *certificateServiceMock) DownloadToken(_ context.Context, _ *models.JWTClaims, _ string) (*dto.CertificateDownload, error) {
	return m.download, m.downErr
}

func (m *certificateServiceMock) Open(_ context.Context, _ string) (*os.File, *models.Certificate, error) {
	return nil, nil, appErrors.ErrUnauthorized
}

func (m *certificateServiceMock) Verify(_ context.Context, serial string) (*dto.CertificateVerification, error) {
	m.lastSerial = serial
	return m.verifyResp, m.verifyErr
}

func TestCertificateHandlerDownloadLink(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &certificateServiceMock{
		download: &dto.CertificateDownload{Token: "tok123", ExpiresAt: time.Now().Add(time.Hour)},
	}
	handler := NewCertificateHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})
	c.Params = gin.Params{{Key: "id", Value: "app-1"}}
	req, _ := http.NewRequest(http.MethodGet, "/applications/app-1/certificate", nil)
	c.Request = req

	handler.DownloadLink(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tok123")
}

func TestCertificateHandlerDownloadLinkNotIssued(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewCertificateHandler(&certificateServiceMock{downErr: appErrors.ErrNotFound})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent})
	c.Params = gin.Params{{Key: "id", Value: "app-1"}}
	req, _ := http.NewRequest(http.MethodGet, "/applications/app-1/certificate", nil)
	c.Request = req

	handler.DownloadLink(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestCertificateHandlerDownloadInvalidToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewCertificateHandler(&certificateServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "token", Value: "bogus"}}
	req, _ := http.NewRequest(http.MethodGet, "/certificates/bogus", nil)
	c.Request = req

	handler.Download(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCertificateHandlerVerify(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &certificateServiceMock{
		verifyResp: &dto.CertificateVerification{
			Serial:         "NDC-2026-000007",
			StudentName:    "Asha Verma",
			RegistrationNo: "JU2021CSE042",
			Valid:          true,
		},
	}
	handler := NewCertificateHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Params = gin.Params{{Key: "serial", Value: "NDC-2026-000007"}}
	req, _ := http.NewRequest(http.MethodGet, "/certificates/verify/NDC-2026-000007", nil)
	c.Request = req

	handler.Verify(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "NDC-2026-000007", mockSvc.lastSerial)
	assert.Contains(t, w.Body.String(), "Asha Verma")
}
