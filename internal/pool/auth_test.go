package pool

import (
	"fmt"
	"testing"
)

func TestIsAuthError(t *testing.T) {
	cases := []struct {
		line string
		want bool
	}{
		{"Error: authentication_error from API", true},
		{"request failed: 401 Unauthorized", true},
		{"Invalid API Key provided", true},
		{"Your credit balance is too low", true},
		{"please run /login to continue", true},
		{"compiled successfully", false},
		{"error: file not found", false},
		{"", false},
	}

	for _, tc := range cases {
		if got := IsAuthError(tc.line); got != tc.want {
			t.Errorf("IsAuthError(%q) = %v, want %v", tc.line, got, tc.want)
		}
	}
}

func TestLineRingKeepsNewest(t *testing.T) {
	ring := newLineRing(3)
	for i := 1; i <= 5; i++ {
		ring.add(fmt.Sprintf("line %d", i))
	}

	want := "line 3\nline 4\nline 5"
	if got := ring.joined(); got != want {
		t.Errorf("joined = %q, want %q", got, want)
	}
}

func TestAuthDetectionOverJoinedBuffer(t *testing.T) {
	ring := newLineRing(20)
	ring.add("starting agent")
	ring.add("Error: authentication_error")
	ring.add("shutting down")

	if !IsAuthError(ring.joined()) {
		t.Error("joined buffer with auth line not flagged")
	}
}
