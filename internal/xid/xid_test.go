package xid

import (
	"strings"
	"testing"
)

func TestNewIsPrefixedAndUnique(t *testing.T) {
	a := New("pur")
	b := New("pur")
	if !strings.HasPrefix(a, "pur-") {
		t.Fatalf("expected pur- prefix, got %s", a)
	}
	if a == b {
		t.Fatalf("expected distinct ids, got %s twice", a)
	}
}

func TestShortTakesLastSixUppercased(t *testing.T) {
	if got := Short("pur-12-abcdef123456"); got != "123456" {
		t.Fatalf("expected 123456, got %s", got)
	}
	if got := Short("ab-c"); got != "ABC" {
		t.Fatalf("expected ABC, got %s", got)
	}
}
