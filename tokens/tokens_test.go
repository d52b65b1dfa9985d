package tokens

import "testing"

func TestNewLength(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		tok, err := New()
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if len(tok) != OpaqueTokenLength {
			t.Fatalf("expected %d chars, got %d (%q)", OpaqueTokenLength, len(tok), tok)
		}
		if seen[tok] {
			t.Fatalf("duplicate token generated: %q", tok)
		}
		seen[tok] = true
	}
}

func TestSHA256Base64URL(t *testing.T) {
	a := SHA256Base64URL("abc123")
	b := SHA256Base64URL("abc123")
	if a != b {
		t.Fatalf("digest not deterministic: %q vs %q", a, b)
	}
	if a == SHA256Base64URL("abc124") {
		t.Fatal("distinct inputs produced the same digest")
	}
	// 32 bytes -> 43 base64url chars, no padding
	if len(a) != 43 {
		t.Fatalf("unexpected digest length %d", len(a))
	}
}
