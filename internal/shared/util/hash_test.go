package util

import "testing"

func TestHashKey(t *testing.T) {
	got := HashKey("client-42")
	if got != HashKey("client-42") {
		t.Fatalf("expected stable hash, got %s", got)
	}
	for _, ch := range got {
		if !((ch >= 'a' && ch <= 'f') || (ch >= '0' && ch <= '9')) {
			t.Fatalf("hash contains non-hex character: %c", ch)
		}
	}
	if len(got) != 64 {
		t.Fatalf("expected 64 hex characters, got %d", len(got))
	}
}

func TestHashKeySeparatesParts(t *testing.T) {
	if HashKey("ab", "c") == HashKey("a", "bc") {
		t.Fatalf("part boundaries must affect the digest")
	}
	if HashKey("a", "b") != HashKey("a|b") {
		t.Fatalf("parts are joined with a pipe")
	}
}
