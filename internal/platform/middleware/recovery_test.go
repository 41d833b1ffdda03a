package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/pharmacart/pharmacart/internal/platform/apperr"
)

func TestRecovery_PanicBecomesStorageError(t *testing.T) {
	mw := Recovery(zerolog.Nop())
	handler := mw(func(c echo.Context) error {
		panic("boom")
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	err := handler(c)
	if !apperr.Is(err, apperr.CodeStorage) {
		t.Fatalf("got %v, want storage error", err)
	}
	if ae := apperr.As(err); ae != nil && ae.HTTPStatus() != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", ae.HTTPStatus())
	}
}

func TestRecovery_PassesThroughNormally(t *testing.T) {
	mw := Recovery(zerolog.Nop())
	handler := mw(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
