package chat

import "testing"

func TestDeriveTitle(t *testing.T) {
	long := "Hello, I've been feeling anxious about work lately"
	if got, want := DeriveTitle(long), long[:30]+"..."; got != want {
		t.Fatalf("unexpected title: got %q want %q", got, want)
	}

	if got := DeriveTitle("Hi there"); got != "Hi there" {
		t.Fatalf("short text should be verbatim, got %q", got)
	}
	if got := DeriveTitle("  Hi "); got != "  Hi " {
		t.Fatalf("whitespace should be kept, got %q", got)
	}

	exact := "123456789012345678901234567890"
	if got := DeriveTitle(exact); got != exact {
		t.Fatalf("30 characters should not be truncated, got %q", got)
	}

	// Counted in characters, not bytes.
	if got := DeriveTitle("今天的心情有点低落，想和你聊聊工作上的事情，还有最近睡得不太好的问题"); len([]rune(got)) != 33 {
		t.Fatalf("expected 30 runes plus ellipsis, got %q", got)
	}
}

func TestThreadTouchIsMonotonic(t *testing.T) {
	thread := &Thread{}
	now := timeAt(10)
	thread.Touch(now)
	thread.Touch(now)
	if !thread.LastUpdated.After(now) {
		t.Fatalf("expected LastUpdated to advance past %v, got %v", now, thread.LastUpdated)
	}

	earlier := timeAt(5)
	before := thread.LastUpdated
	thread.Touch(earlier)
	if !thread.LastUpdated.After(before) {
		t.Fatalf("LastUpdated moved backwards: %v -> %v", before, thread.LastUpdated)
	}
}
