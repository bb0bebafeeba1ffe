package config

import (
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("RELAY_TEST_STR", "hello")
	if got := GetEnv("RELAY_TEST_STR", "fallback"); got != "hello" {
		t.Errorf("GetEnv = %q, want %q", got, "hello")
	}
	if got := GetEnv("RELAY_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("GetEnv unset = %q, want %q", got, "fallback")
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("RELAY_TEST_INT", "42")
	if got := GetEnvInt("RELAY_TEST_INT", 7); got != 42 {
		t.Errorf("GetEnvInt = %d, want 42", got)
	}
	t.Setenv("RELAY_TEST_BAD_INT", "not a number")
	if got := GetEnvInt("RELAY_TEST_BAD_INT", 7); got != 7 {
		t.Errorf("GetEnvInt invalid = %d, want fallback 7", got)
	}
	if got := GetEnvInt("RELAY_TEST_UNSET", 7); got != 7 {
		t.Errorf("GetEnvInt unset = %d, want fallback 7", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("RELAY_TEST_DUR", "1500ms")
	if got := GetEnvDuration("RELAY_TEST_DUR", time.Second); got != 1500*time.Millisecond {
		t.Errorf("GetEnvDuration = %v, want 1.5s", got)
	}
	t.Setenv("RELAY_TEST_BAD_DUR", "soon")
	if got := GetEnvDuration("RELAY_TEST_BAD_DUR", time.Second); got != time.Second {
		t.Errorf("GetEnvDuration invalid = %v, want fallback 1s", got)
	}
	if got := GetEnvDuration("RELAY_TEST_UNSET", 2*time.Second); got != 2*time.Second {
		t.Errorf("GetEnvDuration unset = %v, want fallback 2s", got)
	}
}
