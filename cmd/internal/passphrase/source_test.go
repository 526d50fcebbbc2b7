package passphrase

import (
	"io"
	"strings"
	"testing"
)

func fakeEnv(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestSourceReadsEnvironment(t *testing.T) {
	src := NewSource("CPAY_PASS", "")
	src.lookup = fakeEnv(map[string]string{"CPAY_PASS": "hunter2 "})
	got, err := src.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "hunter2 " {
		t.Fatalf("expected exact env value, got %q", got)
	}
	src.lookup = fakeEnv(nil)
	if again, _ := src.Get(); again != got {
		t.Fatalf("expected cached value, got %q", again)
	}
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	src := NewSource("CPAY_PASS", "")
	src.lookup = fakeEnv(map[string]string{"CPAY_PASS": "   "})
	if _, err := src.Get(); err == nil || !strings.Contains(err.Error(), "CPAY_PASS") {
		t.Fatalf("expected empty env error, got %v", err)
	}
}

func TestSourceWithoutTerminal(t *testing.T) {
	src := NewSource("CPAY_PASS", "")
	src.lookup = fakeEnv(nil)
	src.stdin = -1
	src.stderr = io.Discard
	if _, err := src.Get(); err == nil {
		t.Fatalf("expected error without terminal")
	}
}
