package utils

import "testing"

func TestCacheKeyStable(t *testing.T) {
	a := CacheKey("climate", "5")
	b := CacheKey("climate", "5")
	if a != b {
		t.Fatalf("CacheKey not stable: %s != %s", a, b)
	}
	if a == CacheKey("climate", "6") {
		t.Fatal("different parts must give different keys")
	}
	if len(a) != 32 {
		t.Fatalf("len = %d, want 32", len(a))
	}
}

func TestPreview(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"the earth is flat", 9, "the earth..."},
		{"héllo wörld", 5, "héllo..."},
	}
	for _, tt := range tests {
		if got := Preview(tt.in, tt.n); got != tt.want {
			t.Fatalf("Preview(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
