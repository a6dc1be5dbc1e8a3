package formula

import (
	"strings"
	"testing"

	"chat-renderer/internal/placeholder"
)

func TestNormalizeEnvironmentsMathds(t *testing.T) {
	out := NormalizeEnvironments(`the reals \mathds{R} and naturals \mathds{N}`)
	if !strings.Contains(out, "ℝ") || !strings.Contains(out, "ℕ") {
		t.Errorf("double-struck glyphs not substituted: %q", out)
	}
	// Unmapped arguments pass through unchanged.
	in := `\mathds{x}`
	if out := NormalizeEnvironments(in); out != in {
		t.Errorf("unmapped argument was modified: %q", out)
	}
}

func TestNormalizeEnvironmentsAlign(t *testing.T) {
	in := "\\begin{align*}\na &= b\n\\end{align*}"
	out := NormalizeEnvironments(in)
	if !strings.HasPrefix(out, `\[`) || !strings.HasSuffix(out, `\]`) {
		t.Errorf("align* not wrapped in display delimiters: %q", out)
	}
	if !strings.Contains(out, `\begin{align*}`) {
		t.Errorf("environment body lost: %q", out)
	}
}

func TestNormalizeEnvironmentsInlineBeginUntouched(t *testing.T) {
	in := `text \begin{align*} inline \end{align*} text`
	if out := NormalizeEnvironments(in); out != in {
		t.Errorf("inline environment was rewritten: %q", out)
	}
}

func TestNormalizeEnvironmentsStripsLabels(t *testing.T) {
	out := NormalizeEnvironments(`x = y \label{eq:main} + z`)
	if strings.Contains(out, "label") {
		t.Errorf("equation label not stripped: %q", out)
	}
}

func TestNormalizeEnvironmentsBoxed(t *testing.T) {
	for _, in := range []string{
		`\boxed{x=1}`,
		`$\boxed{x=1}$`,
		`\[\boxed{x=1}\]`,
		`$$ \boxed{x=1} $$`,
	} {
		out := NormalizeEnvironments(in)
		if out != `\[\boxed{x=1}\]` {
			t.Errorf("boxed form %q canonicalized to %q", in, out)
		}
	}
}

func TestNormalizeEnvironmentsTextsc(t *testing.T) {
	out := NormalizeEnvironments(`\textsc{bert} model`)
	if !strings.Contains(out, "BERT") {
		t.Errorf("small-caps argument not uppercased: %q", out)
	}
}

func TestExtractSpansInline(t *testing.T) {
	var store placeholder.Store
	out := ExtractSpans(`value \(x < y\) holds`, &store)
	if len(store) != 1 {
		t.Fatalf("expected 1 span, got %d", len(store))
	}
	if strings.Contains(out, `\(`) {
		t.Errorf("delimiter leaked into protected text: %q", out)
	}
	if !strings.Contains(store[0], "&lt;") {
		t.Errorf("angle bracket not escaped inside span: %q", store[0])
	}
}

func TestExtractSpansDisplayWrapped(t *testing.T) {
	var store placeholder.Store
	ExtractSpans(`\[ x=1 \]`, &store)
	if len(store) != 1 {
		t.Fatalf("expected 1 span, got %d", len(store))
	}
	if !strings.HasPrefix(store[0], DisplayOpen) || !strings.HasSuffix(store[0], DisplayClose) {
		t.Errorf("display span not wrapped in container: %q", store[0])
	}
}

func TestExtractSpansDollarHeuristic(t *testing.T) {
	// Two unescaped $ means the region between them is provisionally math,
	// even for currency. Documented limitation, asserted as-is.
	var store placeholder.Store
	ExtractSpans("costs $5 and $10", &store)
	if len(store) != 1 {
		t.Errorf("two-dollar heuristic: expected 1 span, got %d", len(store))
	}

	// A single unescaped $ is never math.
	store = nil
	out := ExtractSpans("costs $5 only", &store)
	if len(store) != 0 || out != "costs $5 only" {
		t.Errorf("lone dollar treated as math: %q (spans=%d)", out, len(store))
	}

	// Escaped dollars do not count toward the heuristic.
	store = nil
	ExtractSpans(`costs \$5 and \$10`, &store)
	if len(store) != 0 {
		t.Errorf("escaped dollars treated as math: %d spans", len(store))
	}
}

func TestExtractSpansEscapedDollarNotDelimiter(t *testing.T) {
	// An escaped \$ must not open a span even once the two-dollar gate is
	// satisfied by real delimiters elsewhere in the text; prose between an
	// escaped dollar and a real span gets no span-scoped fixes.
	var store placeholder.Store
	out := ExtractSpans(`cost \$5 < $x$ end`, &store)
	if len(store) != 1 {
		t.Fatalf("expected 1 span, got %d (%q)", len(store), out)
	}
	if store[0] != "$x$" {
		t.Errorf("span captured more than the dollar pair: %q", store[0])
	}
	if !strings.Contains(out, `\$5 <`) || strings.Contains(out, "&lt;") {
		t.Errorf("prose outside the span was modified: %q", out)
	}

	// An escaped pair never forms a span on its own.
	store = nil
	out = ExtractSpans(`\$a\$ then $x$`, &store)
	if len(store) != 1 || store[0] != "$x$" {
		t.Fatalf("expected only the unescaped pair, got %d spans", len(store))
	}
	if !strings.Contains(out, `\$a\$`) {
		t.Errorf("escaped pair was consumed: %q", out)
	}
}

func TestExtractSpansCommandFixes(t *testing.T) {
	var store placeholder.Store
	ExtractSpans(`\(\bm{v} \coloneqq a ÷ b\)`, &store)
	if len(store) != 1 {
		t.Fatalf("expected 1 span, got %d", len(store))
	}
	span := store[0]
	if !strings.Contains(span, `\boldsymbol{v}`) {
		t.Errorf("\\bm not normalized: %q", span)
	}
	if !strings.Contains(span, ":=") || strings.Contains(span, `\coloneqq`) {
		t.Errorf("\\coloneqq not substituted: %q", span)
	}
	if !strings.Contains(span, `\div`) {
		t.Errorf("division symbol not substituted: %q", span)
	}
}

func TestExtractSpansBareParenOpen(t *testing.T) {
	var store placeholder.Store
	out := ExtractSpans(`(x+y\) done`, &store)
	if len(store) != 1 {
		t.Fatalf("bare-paren span not accepted: %q", out)
	}
	if !strings.HasPrefix(store[0], `\(`) {
		t.Errorf("bare open not repaired to \\(: %q", store[0])
	}
}

func TestExtractSpansTrailingPercent(t *testing.T) {
	var store placeholder.Store
	ExtractSpans("\\[ a + b %\nc \\]", &store)
	if len(store) != 1 {
		t.Fatalf("expected 1 span, got %d", len(store))
	}
	if strings.Contains(store[0], "%") {
		t.Errorf("trailing percent not removed: %q", store[0])
	}
}

func TestRoundTripThroughPlaceholders(t *testing.T) {
	var store placeholder.Store
	out := ExtractSpans(`before \(a+b\) after`, &store)
	restored := placeholder.Restore(out, placeholder.Math, store)
	if restored != `before \(a+b\) after` {
		t.Errorf("round trip changed text: %q", restored)
	}
}
