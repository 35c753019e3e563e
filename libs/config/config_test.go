package config

import (
	"testing"
	"time"
)

func TestDuration(t *testing.T) {
	t.Setenv("WINDOW_A", "5m")
	if got := Duration("WINDOW_A", time.Minute); got != 5*time.Minute {
		t.Fatalf("expected 5m, got %s", got)
	}

	// Bare integers are minutes.
	t.Setenv("WINDOW_B", "30")
	if got := Duration("WINDOW_B", time.Minute); got != 30*time.Minute {
		t.Fatalf("expected 30m, got %s", got)
	}

	t.Setenv("WINDOW_C", "not-a-duration")
	if got := Duration("WINDOW_C", 2*time.Minute); got != 2*time.Minute {
		t.Fatalf("expected fallback 2m, got %s", got)
	}

	if got := Duration("WINDOW_UNSET", 7*time.Minute); got != 7*time.Minute {
		t.Fatalf("expected fallback 7m, got %s", got)
	}
}

func TestPort(t *testing.T) {
	t.Setenv("PORT_OK", "8080")
	if v, err := Port("PORT_OK", "80"); err != nil || v != "8080" {
		t.Fatalf("expected 8080, got %q err %v", v, err)
	}

	t.Setenv("PORT_BAD", "notaport")
	if _, err := Port("PORT_BAD", "80"); err == nil {
		t.Fatal("expected error for invalid port")
	}
}
