package hostname

import (
	"os"
	"testing"
)

func TestResolvePrefersEnvironment(t *testing.T) {
	t.Setenv("HOSTNAME", "ce.example.org")
	if got := Resolve(); got != "ce.example.org" {
		t.Errorf("expected ce.example.org, got %q", got)
	}
}

func TestResolveFallsBackToKernel(t *testing.T) {
	t.Setenv("HOSTNAME", "")
	want, err := os.Hostname()
	if err != nil || want == "" {
		want = Fallback
	}
	if got := Resolve(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
