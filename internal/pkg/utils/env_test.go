package utils

import (
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("PLURA_TEST_STR", "set")
	if got := GetEnv("PLURA_TEST_STR", "default", nil); got != "set" {
		t.Fatalf("GetEnv=%q, want set", got)
	}
	if got := GetEnv("PLURA_TEST_STR_MISSING", "default", nil); got != "default" {
		t.Fatalf("GetEnv=%q, want default", got)
	}
}

func TestGetEnvAsInt(t *testing.T) {
	t.Setenv("PLURA_TEST_INT", "42")
	if got := GetEnvAsInt("PLURA_TEST_INT", 7, nil); got != 42 {
		t.Fatalf("GetEnvAsInt=%d, want 42", got)
	}

	t.Setenv("PLURA_TEST_INT", "not-a-number")
	if got := GetEnvAsInt("PLURA_TEST_INT", 7, nil); got != 7 {
		t.Fatalf("GetEnvAsInt=%d, want default on parse failure", got)
	}

	if got := GetEnvAsInt("PLURA_TEST_INT_MISSING", 7, nil); got != 7 {
		t.Fatalf("GetEnvAsInt=%d, want default when unset", got)
	}
}

func TestGetEnvAsFloat(t *testing.T) {
	t.Setenv("PLURA_TEST_FLOAT", "0.25")
	if got := GetEnvAsFloat("PLURA_TEST_FLOAT", 1.0, nil); got != 0.25 {
		t.Fatalf("GetEnvAsFloat=%v, want 0.25", got)
	}
	t.Setenv("PLURA_TEST_FLOAT", "oops")
	if got := GetEnvAsFloat("PLURA_TEST_FLOAT", 1.0, nil); got != 1.0 {
		t.Fatalf("GetEnvAsFloat=%v, want default", got)
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	t.Setenv("PLURA_TEST_DUR", "90s")
	if got := GetEnvAsDuration("PLURA_TEST_DUR", time.Minute, nil); got != 90*time.Second {
		t.Fatalf("GetEnvAsDuration=%v, want 90s", got)
	}
	t.Setenv("PLURA_TEST_DUR", "ninety")
	if got := GetEnvAsDuration("PLURA_TEST_DUR", time.Minute, nil); got != time.Minute {
		t.Fatalf("GetEnvAsDuration=%v, want default", got)
	}
}
