package worker

import (
	"errors"
	"strings"
	"testing"
)

func TestPanicErrorKeepsRecoveredValue(t *testing.T) {
	cases := []struct {
		name string
		val  any
		want string
	}{
		{"string", "index out of range", "panic: index out of range"},
		{"error value", errors.New("nil pointer dereference"), "panic: nil pointer dereference"},
		{"non-string", 42, "panic: 42"},
		{"nil", nil, "panic: <nil>"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := errFromRecover(tc.val).Error()
			if got != tc.want {
				t.Fatalf("Error() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMissingHandlerErrorNamesJobType(t *testing.T) {
	e := &missingHandlerError{JobType: "deep_research"}
	if !strings.Contains(e.Error(), "deep_research") {
		t.Fatalf("Error() = %q, want the job type included", e.Error())
	}
}
