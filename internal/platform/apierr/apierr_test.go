package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorMessageFallbacks(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		want string
	}{
		{name: "wrapped_error", err: New(500, "boom", errors.New("db down")), want: "db down"},
		{name: "code_only", err: &Error{Code: "not_found"}, want: "not_found"},
		{name: "status_only", err: &Error{Status: 418}, want: "api error (418)"},
		{name: "empty", err: &Error{}, want: "api error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.Error(); got != tc.want {
				t.Fatalf("Error()=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestHelperStatusCodes(t *testing.T) {
	if e := InvalidInput(errors.New("bad")); e.Status != http.StatusBadRequest || e.Code != "invalid_input" {
		t.Fatalf("InvalidInput=%+v", e)
	}
	if e := NotFound("entry_not_found", nil); e.Status != http.StatusNotFound || e.Code != "entry_not_found" {
		t.Fatalf("NotFound=%+v", e)
	}
	if e := Forbidden(errors.New("nope")); e.Status != http.StatusForbidden {
		t.Fatalf("Forbidden=%+v", e)
	}
}

func TestUnwrap(t *testing.T) {
	inner := errors.New("inner")
	wrapped := fmt.Errorf("outer: %w", New(500, "code", inner))
	if !errors.Is(wrapped, inner) {
		t.Fatal("errors.Is failed to reach the wrapped cause")
	}

	var ae *Error
	if !errors.As(wrapped, &ae) || ae.Code != "code" {
		t.Fatalf("errors.As: %+v", ae)
	}
}
