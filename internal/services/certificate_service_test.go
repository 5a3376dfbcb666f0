package services

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gorm.io/gorm"
)

func TestIssueForCourseRendersFiles(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, nextPhone())
	course := seedCourse(t, db, "Dialectic", 100)
	mediaDir := t.TempDir()
	certs := NewCertificateService(db, "https://example.uz", mediaDir)

	cert, err := certs.IssueForCourse(user.ID, course.ID)
	if err != nil {
		t.Fatalf("issue certificate: %v", err)
	}
	if len(cert.Hash) != 32 {
		t.Fatalf("expected a 32-character hash, got %q", cert.Hash)
	}
	if cert.CourseID == nil || *cert.CourseID != course.ID {
		t.Fatalf("expected the certificate bound to the course, got %+v", cert)
	}

	for _, rel := range []string{cert.QRPath, cert.PDFPath} {
		if rel == "" {
			t.Fatal("expected rendered file paths on the certificate")
		}
		if _, err := os.Stat(filepath.Join(mediaDir, rel)); err != nil {
			t.Fatalf("expected rendered file %s: %v", rel, err)
		}
	}

	url := certs.VerifyURL(cert.Hash)
	if !strings.HasSuffix(url, "/certificates-verify/"+cert.Hash) {
		t.Fatalf("unexpected verification url %q", url)
	}
}

func TestIssueForCourseIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, nextPhone())
	course := seedCourse(t, db, "Grammar", 100)
	certs := NewCertificateService(db, "https://example.uz", "")

	first, err := certs.IssueForCourse(user.ID, course.ID)
	if err != nil {
		t.Fatalf("issue certificate: %v", err)
	}
	second, err := certs.IssueForCourse(user.ID, course.ID)
	if err != nil {
		t.Fatalf("reissue certificate: %v", err)
	}
	if first.ID != second.ID {
		t.Fatal("expected the existing certificate returned on reissue")
	}
}

func TestIssueForBundleAndLookup(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, nextPhone())
	c1 := seedCourse(t, db, "Music I", 100)
	c2 := seedCourse(t, db, "Music II", 200)
	bundle := seedBundle(t, db, "Music Track", 0, c1, c2)
	certs := NewCertificateService(db, "https://example.uz", "")

	cert, err := certs.IssueForBundle(user.ID, bundle.ID)
	if err != nil {
		t.Fatalf("issue bundle certificate: %v", err)
	}
	if cert.CertificatedCourseID == nil || *cert.CertificatedCourseID != bundle.ID {
		t.Fatalf("expected the certificate bound to the bundle, got %+v", cert)
	}

	found, err := certs.ByHash(cert.Hash)
	if err != nil {
		t.Fatalf("lookup by hash: %v", err)
	}
	if found.ID != cert.ID {
		t.Fatal("expected the certificate resolved by its hash")
	}

	if _, err := certs.ByHash("deadbeef"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected not found for an unknown hash, got %v", err)
	}

	list, err := certs.ForUser(user.ID)
	if err != nil {
		t.Fatalf("list certificates: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 certificate, got %d", len(list))
	}
}
