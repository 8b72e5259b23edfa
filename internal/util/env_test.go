package util

import (
	"testing"
	"time"
)

func TestGetEnvString(t *testing.T) {
	t.Setenv("KE_TEST_STRING", "neo4j")
	if got := GetEnvString("KE_TEST_STRING", "memory"); got != "neo4j" {
		t.Fatalf("expected neo4j, got %q", got)
	}
	t.Setenv("KE_TEST_STRING", "")
	if got := GetEnvString("KE_TEST_STRING", "memory"); got != "memory" {
		t.Fatalf("expected default for empty value, got %q", got)
	}
}

func TestGetEnvNumericFallsBack(t *testing.T) {
	t.Setenv("KE_TEST_NUM", "not-a-number")
	if got := GetEnvInt("KE_TEST_NUM", 5); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
	t.Setenv("KE_TEST_NUM", " 12 ")
	if got := GetEnvInt("KE_TEST_NUM", 5); got != 12 {
		t.Fatalf("expected 12, got %d", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"1", true},
		{"YES", true},
		{"false", false},
		{"0", false},
		{"maybe", true},
	}
	for _, tt := range tests {
		t.Setenv("KE_TEST_BOOL", tt.value)
		if got := GetEnvBool("KE_TEST_BOOL", true); got != tt.want {
			t.Fatalf("value %q: expected %v, got %v", tt.value, tt.want, got)
		}
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("KE_TEST_DUR", "250ms")
	if got := GetEnvDuration("KE_TEST_DUR", time.Second); got != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %v", got)
	}
	t.Setenv("KE_TEST_DUR", "3")
	if got := GetEnvDuration("KE_TEST_DUR", time.Second); got != 3*time.Second {
		t.Fatalf("expected 3s, got %v", got)
	}
	t.Setenv("KE_TEST_DUR", "soon")
	if got := GetEnvDuration("KE_TEST_DUR", time.Second); got != time.Second {
		t.Fatalf("expected default, got %v", got)
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("KE_TEST_LIST", " a, ,b ,c")
	got := GetEnvList("KE_TEST_LIST")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected list: %v", got)
	}
}
