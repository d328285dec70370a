package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// CertificateData carries everything printed on a clearance certificate.
type CertificateData struct {
	UniversityName string
	StudentName    string
	RegistrationNo string
	School         string
	Course         string
	Branch         string
	Serial         string
	IssuedAt       time.Time
	Departments    []string
	SignatoryName  string
	SignatoryTitle string
	VerifyURL      string
}

// CertificateRenderer renders no-dues clearance certificates as PDF documents.
type CertificateRenderer struct{}

// NewCertificateRenderer constructs a certificate renderer.
func NewCertificateRenderer() *CertificateRenderer {
	return &CertificateRenderer{}
}

// Render produces the certificate PDF bytes.
func (r *CertificateRenderer) Render(data CertificateData) ([]byte, error) {
	if data.StudentName == "" || data.RegistrationNo == "" || data.Serial == "" {
		return nil, fmt.Errorf("certificate requires student name, registration no and serial")
	}

	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetDrawColor(25, 52, 104)
	pdf.SetLineWidth(1.2)
	pdf.Rect(10, 10, 277, 190, "D")
	pdf.SetLineWidth(0.3)
	pdf.Rect(13, 13, 271, 184, "D")

	pdf.SetFont("Times", "B", 22)
	pdf.SetTextColor(25, 52, 104)
	pdf.CellFormat(0, 14, data.UniversityName, "", 1, "C", false, 0, "")

	pdf.SetFont("Times", "B", 16)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 10, "NO DUES CLEARANCE CERTIFICATE", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Times", "", 12)
	body := fmt.Sprintf("This is to certify that %s (Registration No. %s)", data.StudentName, data.RegistrationNo)
	pdf.CellFormat(0, 8, body, "", 1, "C", false, 0, "")

	enrolment := data.School
	if data.Course != "" {
		enrolment += ", " + data.Course
	}
	if data.Branch != "" {
		enrolment += ", " + data.Branch
	}
	pdf.CellFormat(0, 8, fmt.Sprintf("of %s", enrolment), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 8, "has no outstanding dues and stands cleared by the following departments:", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Times", "I", 11)
	for _, dept := range data.Departments {
		pdf.CellFormat(0, 6, dept, "", 1, "C", false, 0, "")
	}
	pdf.Ln(8)

	pdf.SetFont("Times", "", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Certificate No: %s", data.Serial), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Issued on: %s", data.IssuedAt.Format("02 January 2006")), "", 1, "C", false, 0, "")

	if data.VerifyURL != "" {
		pdf.SetFont("Courier", "", 9)
		pdf.SetTextColor(90, 90, 90)
		pdf.CellFormat(0, 6, fmt.Sprintf("Verify at %s", data.VerifyURL), "", 1, "C", false, 0, "")
		pdf.SetTextColor(0, 0, 0)
	}

	pdf.SetY(-50)
	pdf.SetFont("Times", "B", 12)
	pdf.CellFormat(0, 6, data.SignatoryName, "", 1, "R", false, 0, "")
	pdf.SetFont("Times", "", 10)
	pdf.CellFormat(0, 6, data.SignatoryTitle, "", 1, "R", false, 0, "")

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render certificate pdf: %w", err)
	}
	return buf.Bytes(), nil
}
