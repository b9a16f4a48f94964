package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/piiderlab/api/internal/platform/auth"
)

type fakeSigner struct {
	email string
}

func (f fakeSigner) Email() string { return f.email }

func (f fakeSigner) SignBytes(_ context.Context, payload []byte) ([]byte, error) {
	return []byte("signed:" + string(payload[:min(8, len(payload))])), nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func TestSignedURLDownloadForOwner(t *testing.T) {
	client, err := NewClient(fakeSigner{email: "svc@piiderlab.iam.gserviceaccount.com"},
		WithClock(func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }),
	)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	identity := &auth.Identity{UID: "uid-1", Roles: []string{auth.RoleUser}}
	result, err := client.SignedURL(context.Background(), "piiderlab-reports", "reports/orders/ord-1/report.pdf", SignedURLOptions{
		Download: &DownloadOptions{
			ExpiresIn:   10 * time.Minute,
			OwnerID:     "uid-1",
			Identity:    identity,
			Disposition: `attachment; filename="report.pdf"`,
		},
	})
	if err != nil {
		t.Fatalf("SignedURL returned error: %v", err)
	}
	if result.Method != "GET" {
		t.Fatalf("expected GET method, got %s", result.Method)
	}
	if !strings.Contains(result.URL, "piiderlab-reports") {
		t.Fatalf("expected bucket in URL, got %s", result.URL)
	}
	wantExpiry := time.Date(2026, 5, 1, 12, 10, 0, 0, time.UTC)
	if !result.ExpiresAt.Equal(wantExpiry) {
		t.Fatalf("unexpected expiry %s", result.ExpiresAt)
	}
}

func TestSignedURLDownloadDeniedForOtherUser(t *testing.T) {
	client, err := NewClient(fakeSigner{email: "svc@piiderlab.iam.gserviceaccount.com"})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	identity := &auth.Identity{UID: "uid-2", Roles: []string{auth.RoleUser}}
	_, err = client.SignedURL(context.Background(), "piiderlab-reports", "reports/orders/ord-1/report.pdf", SignedURLOptions{
		Download: &DownloadOptions{OwnerID: "uid-1", Identity: identity},
	})
	if err != ErrPermissionDenied {
		t.Fatalf("expected permission denied, got %v", err)
	}
}

func TestSignedURLDownloadExpiryCapped(t *testing.T) {
	client, err := NewClient(fakeSigner{email: "svc@piiderlab.iam.gserviceaccount.com"})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	_, err = client.SignedURL(context.Background(), "piiderlab-reports", "reports/orders/ord-1/report.pdf", SignedURLOptions{
		Download: &DownloadOptions{ExpiresIn: time.Hour, AllowAnonymous: true},
	})
	if err != errExpiryTooLong {
		t.Fatalf("expected expiry error, got %v", err)
	}
}

func TestSignedURLUploadRequiresContentType(t *testing.T) {
	client, err := NewClient(fakeSigner{email: "svc@piiderlab.iam.gserviceaccount.com"})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	_, err = client.SignedURL(context.Background(), "piiderlab-reports", "reports/orders/ord-1/report.pdf", SignedURLOptions{
		Upload: &UploadOptions{},
	})
	if err != errContentTypeMissing {
		t.Fatalf("expected content type error, got %v", err)
	}
}

func TestReportObjectPath(t *testing.T) {
	path, err := ReportObjectPath("ord-42", "")
	if err != nil {
		t.Fatalf("ReportObjectPath returned error: %v", err)
	}
	if path != "reports/orders/ord-42/report.pdf" {
		t.Fatalf("unexpected path %s", path)
	}

	if _, err := ReportObjectPath("../evil", "r.pdf"); err == nil {
		t.Fatal("expected traversal rejection")
	}
	if _, err := ReportObjectPath("ord-1", "a/b.pdf"); err == nil {
		t.Fatal("expected slash rejection in file name")
	}
}
