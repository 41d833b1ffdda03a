package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err    *Error
		status int
	}{
		{Validation("quantity must be positive"), http.StatusUnprocessableEntity},
		{StateConflict("prescription is not verified"), http.StatusUnprocessableEntity},
		{Authorization("pharmacist role required"), http.StatusForbidden},
		{NotFound("prescription"), http.StatusNotFound},
		{Storage("insert prescription", errors.New("connection refused")), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := tc.err.HTTPStatus(); got != tc.status {
			t.Errorf("%s: expected status %d, got %d", tc.err.Code, tc.status, got)
		}
	}
}

func TestIs(t *testing.T) {
	err := StateConflict("cannot dispense from status %q", "pending")
	if !Is(err, CodeStateConflict) {
		t.Error("expected Is to match state conflict")
	}
	if Is(err, CodeValidation) {
		t.Error("expected Is not to match validation")
	}
	if Is(errors.New("plain"), CodeStateConflict) {
		t.Error("expected Is to reject plain errors")
	}
}

func TestIs_Wrapped(t *testing.T) {
	inner := NotFound("cart")
	wrapped := fmt.Errorf("load cart: %w", inner)
	if !Is(wrapped, CodeNotFound) {
		t.Error("expected Is to unwrap fmt.Errorf chains")
	}
	if As(wrapped) != inner {
		t.Error("expected As to return the inner error")
	}
}

func TestStorage_PreservesCause(t *testing.T) {
	cause := errors.New("deadlock detected")
	err := Storage("update prescription", cause)
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable via errors.Is")
	}
}

func TestWithField(t *testing.T) {
	err := Validation("missing dispense details").
		WithField("lot_number", "required").
		WithField("manufacturer", "required")

	if len(err.Fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(err.Fields))
	}
	if err.Fields["lot_number"] != "required" {
		t.Errorf("unexpected field message: %q", err.Fields["lot_number"])
	}
}
