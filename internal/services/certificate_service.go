package services

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jung-kurt/gofpdf"
	qrcode "github.com/skip2/go-qrcode"
	"gorm.io/gorm"

	"github.com/example/aristotle/internal/models"
)

// CertificateService issues and verifies course certificates. Each
// certificate carries a unique hash; the QR code on the PDF points at the
// public verification URL for that hash.
type CertificateService struct {
	db       *gorm.DB
	domain   string
	mediaDir string
}

// NewCertificateService constructs a CertificateService. domain is the
// public base URL embedded into QR codes, mediaDir the directory for the
// generated files.
func NewCertificateService(db *gorm.DB, domain, mediaDir string) *CertificateService {
	return &CertificateService{db: db, domain: domain, mediaDir: mediaDir}
}

// IssueForCourse issues (or returns the existing) certificate for a course.
func (s *CertificateService) IssueForCourse(userID, courseID uuid.UUID) (*models.CourseCertificate, error) {
	var existing models.CourseCertificate
	err := s.db.Where("user_id = ? AND course_id = ?", userID, courseID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var course models.Course
	if err := s.db.First(&course, "id = ?", courseID).Error; err != nil {
		return nil, err
	}
	cert := models.CourseCertificate{UserID: userID, CourseID: &courseID}
	return s.issue(&cert, course.Name)
}

// IssueForBundle issues (or returns the existing) certificate for a
// certificated course.
func (s *CertificateService) IssueForBundle(userID, bundleID uuid.UUID) (*models.CourseCertificate, error) {
	var existing models.CourseCertificate
	err := s.db.Where("user_id = ? AND certificated_course_id = ?", userID, bundleID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var bundle models.CertificatedCourse
	if err := s.db.First(&bundle, "id = ?", bundleID).Error; err != nil {
		return nil, err
	}
	cert := models.CourseCertificate{UserID: userID, CertificatedCourseID: &bundleID}
	return s.issue(&cert, bundle.Name)
}

func (s *CertificateService) issue(cert *models.CourseCertificate, courseName string) (*models.CourseCertificate, error) {
	var user models.User
	if err := s.db.First(&user, "id = ?", cert.UserID).Error; err != nil {
		return nil, err
	}

	cert.Hash = certificateHash(cert.UserID, courseName)

	if s.mediaDir != "" {
		qrPath, pdfPath, err := s.render(cert.Hash, user.FullName(), courseName)
		if err != nil {
			return nil, err
		}
		cert.QRPath = qrPath
		cert.PDFPath = pdfPath
	}

	if err := s.db.Create(cert).Error; err != nil {
		return nil, err
	}
	return cert, nil
}

// certificateHash derives the public verification hash from the user, the
// course name and the issue time.
func certificateHash(userID uuid.UUID, courseName string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", userID, courseName, time.Now().UnixNano())))
	return hex.EncodeToString(sum[:16])
}

// VerifyURL is the public address encoded into the certificate's QR code.
func (s *CertificateService) VerifyURL(hash string) string {
	return fmt.Sprintf("%s/certificates-verify/%s", s.domain, hash)
}

// render writes the QR image and the certificate PDF under mediaDir and
// returns their paths relative to it.
func (s *CertificateService) render(hash, fullName, courseName string) (qrPath, pdfPath string, err error) {
	dir := filepath.Join(s.mediaDir, "certificates")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}

	qrRel := filepath.Join("certificates", hash+".png")
	qrAbs := filepath.Join(s.mediaDir, qrRel)
	if err := qrcode.WriteFile(s.VerifyURL(hash), qrcode.Medium, 256, qrAbs); err != nil {
		return "", "", err
	}

	pdfRel := filepath.Join("certificates", hash+".pdf")
	pdfAbs := filepath.Join(s.mediaDir, pdfRel)
	if err := writeCertificatePDF(pdfAbs, qrAbs, fullName, courseName, hash); err != nil {
		return "", "", err
	}

	return qrRel, pdfRel, nil
}

func writeCertificatePDF(path, qrPath, fullName, courseName, hash string) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 32)
	pdf.CellFormat(0, 30, "Certificate of Completion", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 16)
	pdf.CellFormat(0, 12, "This certificate is presented to", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "B", 26)
	pdf.CellFormat(0, 18, fullName, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 16)
	pdf.CellFormat(0, 12, "for successfully completing the course", "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 14, courseName, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 10, time.Now().Format("02.01.2006"), "", 1, "C", false, 0, "")

	pdf.ImageOptions(qrPath, 128, 150, 40, 40, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	pdf.SetY(195)
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 6, hash, "", 1, "C", false, 0, "")

	return pdf.OutputFileAndClose(path)
}

// ByHash resolves a certificate by its public hash, preloading the parent
// course or bundle for display.
func (s *CertificateService) ByHash(hash string) (*models.CourseCertificate, error) {
	var cert models.CourseCertificate
	err := s.db.Where("hash = ?", hash).First(&cert).Error
	if err != nil {
		return nil, err
	}
	return &cert, nil
}

// ForUser lists the user's certificates.
func (s *CertificateService) ForUser(userID uuid.UUID) ([]models.CourseCertificate, error) {
	var certs []models.CourseCertificate
	err := s.db.Where("user_id = ?", userID).Order("created_at desc").Find(&certs).Error
	return certs, err
}
