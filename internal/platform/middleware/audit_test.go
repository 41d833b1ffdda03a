package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/pharmacart/pharmacart/internal/platform/auth"
)

func TestAudit_RecordsAPIAccess(t *testing.T) {
	var recorded []AccessEntry
	recorder := AccessRecorderFunc(func(entry AccessEntry) error {
		recorded = append(recorded, entry)
		return nil
	})

	mw := Audit(zerolog.Nop(), recorder)
	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	rxID := uuid.New()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/prescriptions/"+rxID.String()+"/dispense", nil)
	ctx := context.WithValue(req.Context(), auth.UserIDKey, "pharm-1")
	ctx = context.WithValue(ctx, auth.UserRolesKey, []string{auth.RolePharmacist})
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("request_id", "req-abc")

	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(recorded) != 1 {
		t.Fatalf("expected 1 recorded entry, got %d", len(recorded))
	}
	entry := recorded[0]
	if entry.UserID != "pharm-1" {
		t.Errorf("expected user pharm-1, got %q", entry.UserID)
	}
	if entry.ResourceType != "prescriptions" {
		t.Errorf("expected resource prescriptions, got %q", entry.ResourceType)
	}
	if entry.PrescriptionID != rxID.String() {
		t.Errorf("expected prescription id %s, got %q", rxID, entry.PrescriptionID)
	}
	if entry.Action != "create" {
		t.Errorf("expected action create, got %q", entry.Action)
	}
	if entry.RequestID != "req-abc" {
		t.Errorf("expected request id req-abc, got %q", entry.RequestID)
	}
}

func TestAudit_SkipsNonAPIRoutes(t *testing.T) {
	var recorded []AccessEntry
	recorder := AccessRecorderFunc(func(entry AccessEntry) error {
		recorded = append(recorded, entry)
		return nil
	})

	mw := Audit(zerolog.Nop(), recorder)
	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	if err := handler(e.NewContext(req, httptest.NewRecorder())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(recorded) != 0 {
		t.Fatalf("expected no recorded entries for /health, got %d", len(recorded))
	}
}

func TestAudit_RecorderFailureDoesNotFailRequest(t *testing.T) {
	recorder := AccessRecorderFunc(func(entry AccessEntry) error {
		return echo.NewHTTPError(http.StatusInternalServerError, "store down")
	})

	mw := Audit(zerolog.Nop(), recorder)
	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	rec := httptest.NewRecorder()
	if err := handler(e.NewContext(req, rec)); err != nil {
		t.Fatalf("expected request to succeed despite recorder failure, got %v", err)
	}
}

func TestExtractResourceType(t *testing.T) {
	cases := map[string]string{
		"/api/v1/prescriptions":     "prescriptions",
		"/api/v1/prescriptions/123": "prescriptions",
		"/api/v1/cart/items":        "cart",
		"/api/v1/":                  "unknown",
	}
	for path, want := range cases {
		if got := extractResourceType(path); got != want {
			t.Errorf("extractResourceType(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestExtractPrescriptionID_RejectsNonUUID(t *testing.T) {
	if got := extractPrescriptionID("/api/v1/prescriptions/not-a-uuid/verify"); got != "" {
		t.Errorf("expected empty id for non-uuid segment, got %q", got)
	}
}
