package helpers

import "testing"

func TestCanonicalURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "defaults https and cleans path",
			in:   "Example.com/shop/../products/latest",
			want: "https://example.com/products/latest",
		},
		{
			name: "removes default port tracking params and fragment",
			in:   "http://shop.example.com:80/item?id=123&utm_source=rss#reviews",
			want: "http://shop.example.com/item?id=123",
		},
		{
			name: "sorts query parameters",
			in:   "https://example.com/p/?b=2&a=1&fbclid=xyz",
			want: "https://example.com/p/?a=1&b=2",
		},
		{
			name: "handles schemeless double slash",
			in:   "//cdn.example.com/img/42?utm_medium=email",
			want: "https://cdn.example.com/img/42",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := CanonicalURL(tt.in)
			if err != nil {
				t.Fatalf("CanonicalURL() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("CanonicalURL() got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanonicalURLErrors(t *testing.T) {
	t.Parallel()
	if _, err := CanonicalURL(""); err == nil {
		t.Fatalf("expected error for empty input")
	}
	if _, err := CanonicalURL("   "); err == nil {
		t.Fatalf("expected error for blank input")
	}
}

func TestResolveRef(t *testing.T) {
	t.Parallel()
	got := ResolveRef("https://example.com/products/", "../img/a.png")
	if got != "https://example.com/img/a.png" {
		t.Fatalf("ResolveRef() got %q", got)
	}
	if got := ResolveRef("https://example.com", "https://other.com/x"); got != "https://other.com/x" {
		t.Fatalf("absolute href should pass through, got %q", got)
	}
}

func TestSanitizeURL(t *testing.T) {
	t.Parallel()
	got := SanitizeURL("https://example.com/path with space/img.jpg")
	if got != "https://example.com/path%20with%20space/img.jpg" {
		t.Fatalf("SanitizeURL() got %q", got)
	}
}

func TestSameHost(t *testing.T) {
	t.Parallel()
	if !SameHost("https://www.example.com/a", "https://example.com/b") {
		t.Fatalf("www prefix should be ignored")
	}
	if SameHost("https://example.com", "https://other.com") {
		t.Fatalf("different hosts should not match")
	}
}

func TestURLFingerprint(t *testing.T) {
	t.Parallel()
	a := URLFingerprint("https://example.com/p?utm_source=x&id=1")
	b := URLFingerprint("https://example.com/p?id=1")
	if a != b {
		t.Fatalf("equivalent URLs should share a fingerprint: %q vs %q", a, b)
	}
	if len(a) != 8 {
		t.Fatalf("fingerprint length = %d, want 8", len(a))
	}
	if a == URLFingerprint("https://example.com/q?id=1") {
		t.Fatalf("distinct URLs collided")
	}
}
