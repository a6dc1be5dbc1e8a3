package placeholder

import (
	"regexp"
	"strings"
	"testing"
)

var wordRe = regexp.MustCompile(`@\w+@`)

func TestExtractRestoreRoundTrip(t *testing.T) {
	var store Store
	in := "keep @one@ and @two@ here"
	out := Extract(in, wordRe, InlineCode, &store)

	if len(store) != 2 {
		t.Fatalf("expected 2 regions, got %d", len(store))
	}
	if strings.Contains(out, "@") {
		t.Errorf("regions not fully extracted: %q", out)
	}
	if restored := Restore(out, InlineCode, store); restored != in {
		t.Errorf("round trip changed text: %q", restored)
	}
}

func TestExtractAssignsIndicesInOrder(t *testing.T) {
	var store Store
	out := Extract("@a@ @b@ @c@", wordRe, Math, &store)
	want := Token(Math, 0) + " " + Token(Math, 1) + " " + Token(Math, 2)
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestExtractContinuesIndexAcrossCalls(t *testing.T) {
	// Multi-pass extraction into the same store must continue the index
	// sequence, not restart it.
	var store Store
	first := Extract("@a@", wordRe, Math, &store)
	second := Extract("@b@", wordRe, Math, &store)

	if first != Token(Math, 0) {
		t.Errorf("first pass: got %q", first)
	}
	if second != Token(Math, 1) {
		t.Errorf("second pass: got %q", second)
	}
	combined := Restore(first+" "+second, Math, store)
	if combined != "@a@ @b@" {
		t.Errorf("combined restore: got %q", combined)
	}
}

func TestExtractFuncStoresTransformedText(t *testing.T) {
	var store Store
	Extract("", wordRe, Link, &store) // no-op on empty input
	out := ExtractFunc("@x@", wordRe, Link, &store, strings.ToUpper)
	if store[0] != "@X@" {
		t.Errorf("transform not applied before storing: %q", store[0])
	}
	if restored := Restore(out, Link, store); restored != "@X@" {
		t.Errorf("restore did not use transformed text: %q", restored)
	}
}

func TestRestoreOutOfRangeTokenLeftInPlace(t *testing.T) {
	text := "before " + Token(CodeBlock, 7) + " after"
	if out := Restore(text, CodeBlock, Store{"only one"}); out != text {
		t.Errorf("out-of-range token was modified: %q", out)
	}
}

func TestRestoreIgnoresOtherCategories(t *testing.T) {
	text := Token(Math, 0)
	if out := Restore(text, CodeBlock, Store{"code"}); out != text {
		t.Errorf("token of another category was restored: %q", out)
	}
}

func TestTokensAreInert(t *testing.T) {
	// Tokens must not contain characters any downstream pass matches on.
	token := Token(CodeBlock, 12)
	for _, c := range "`$[]()<>" {
		if strings.ContainsRune(token, c) {
			t.Errorf("token %q contains active character %q", token, c)
		}
	}
}
