// Package formula canonicalizes LaTeX-style math in chat messages before
// Markdown rendering.
//
// Two entry points mirror the two phases of math handling: environment
// rewrites that run over the whole text while code and links are already
// protected (NormalizeEnvironments), and span extraction that locates every
// math region, applies per-span fixes, and tokenizes the result so the
// Markdown renderer never sees a math delimiter (ExtractSpans).
package formula

import (
	"regexp"
	"strings"

	"chat-renderer/internal/logger"
	"chat-renderer/internal/placeholder"
)

// DisplayOpen and DisplayClose wrap display-mode math so the typesetting
// engine gets a block container instead of being swallowed into a <p>.
const (
	DisplayOpen  = `<div class="math-display">`
	DisplayClose = `</div>`
)

// mathdsGlyphs maps \mathds arguments to double-struck Unicode glyphs.
// 未收录的参数原样保留
var mathdsGlyphs = map[string]string{
	"A": "𝔸", "B": "𝔹", "C": "ℂ", "D": "𝔻", "E": "𝔼", "F": "𝔽",
	"G": "𝔾", "H": "ℍ", "I": "𝕀", "J": "𝕁", "K": "𝕂", "L": "𝕃",
	"M": "𝕄", "N": "ℕ", "O": "𝕆", "P": "ℙ", "Q": "ℚ", "R": "ℝ",
	"S": "𝕊", "T": "𝕋", "U": "𝕌", "V": "𝕍", "W": "𝕎", "X": "𝕏",
	"Y": "𝕐", "Z": "ℤ",
	"0": "𝟘", "1": "𝟙", "2": "𝟚", "3": "𝟛", "4": "𝟜",
	"5": "𝟝", "6": "𝟞", "7": "𝟟", "8": "𝟠", "9": "𝟡",
}

var (
	mathdsRe = regexp.MustCompile(`\\mathds\{([A-Za-z0-9])\}`)

	// Environment delimiters are only rewritten when they sit alone on a
	// line; inline \begin{...} fragments are left for the typesetter.
	alignBeginRe    = regexp.MustCompile(`(?m)^[ \t]*\\begin\{align\*\}[ \t]*$`)
	alignEndRe      = regexp.MustCompile(`(?m)^[ \t]*\\end\{align\*\}[ \t]*$`)
	equationBeginRe = regexp.MustCompile(`(?m)^[ \t]*\\begin\{equation\}[ \t]*$`)
	equationEndRe   = regexp.MustCompile(`(?m)^[ \t]*\\end\{equation\}[ \t]*$`)

	eqLabelRe = regexp.MustCompile(`\\label\{eq:[^}]*\}`)

	// boxedRe tolerates optional display delimiters and stray $ around the
	// \boxed command; braces nest at most one level.
	boxedRe = regexp.MustCompile(
		`(?:\\\[|\$\$|\$)?\s*\\boxed\{((?:[^{}]|\{[^{}]*\})*)\}\s*(?:\\\]|\$\$|\$)?`)

	textscRe = regexp.MustCompile(`\\textsc\{([^}]*)\}`)

	bmBracedRe = regexp.MustCompile(`\\bm\{([^}]*)\}`)
	bmBareRe   = regexp.MustCompile(`\\bm\s+([A-Za-z])`)

	trailingPercentRe = regexp.MustCompile(`(?m)%[ \t]*$`)

	// spanRe matches \(...\), \[...\], $$...$$ and the tolerated bare-paren
	// open form (...\). Single-dollar inline math is handled separately:
	// it is gated on the dollar-count heuristic and an escaped \$ must not
	// open or close a span, which a plain regex alternation cannot express.
	spanRe = regexp.MustCompile(
		`\\\([\s\S]*?\\\)|\\\[[\s\S]*?\\\]|\$\$[\s\S]*?\$\$|\([^()\n]*\\\)`)
)

// NormalizeEnvironments applies the ordered whole-text rewrites that must
// run before span extraction: glyph substitution, environment-to-display
// conversion, label stripping, boxed canonicalization and small-caps
// uppercasing. Order matters; later patterns assume earlier canonical forms.
func NormalizeEnvironments(text string) string {
	text = mathdsRe.ReplaceAllStringFunc(text, func(m string) string {
		arg := m[len(`\mathds{`) : len(m)-1]
		if glyph, ok := mathdsGlyphs[arg]; ok {
			return glyph
		}
		return m
	})

	text = alignBeginRe.ReplaceAllString(text, `\[`+"\n"+`\begin{align*}`)
	text = alignEndRe.ReplaceAllString(text, `\end{align*}`+"\n"+`\]`)
	text = equationBeginRe.ReplaceAllString(text, `\[`+"\n"+`\begin{equation}`)
	text = equationEndRe.ReplaceAllString(text, `\end{equation}`+"\n"+`\]`)

	text = eqLabelRe.ReplaceAllString(text, "")

	text = boxedRe.ReplaceAllString(text, `\[\boxed{$1}\]`)

	text = textscRe.ReplaceAllStringFunc(text, func(m string) string {
		inner := m[len(`\textsc{`) : len(m)-1]
		return strings.ToUpper(inner)
	})

	return text
}

// ExtractSpans locates every math span in text, normalizes each span in
// place, wraps display-mode spans in a block container, and replaces each
// span with a placeholder token appended to store. The returned text
// contains no math delimiters.
func ExtractSpans(text string, store *placeholder.Store) string {
	text = placeholder.ExtractFunc(text, spanRe, placeholder.Math, store, normalizeSpan)

	// Single-dollar inline math only when at least two unescaped $ remain;
	// a lone $ is prose (usually currency). Two or more are provisionally
	// math even when the author meant prices, a known limitation.
	if countUnescapedDollars(text) >= 2 {
		text = extractInlineDollars(text, store)
	}
	return text
}

// extractInlineDollars tokenizes $...$ spans whose delimiters are both
// unescaped and on the same line. An escaped \$ neither opens nor closes a
// span, so prose between an escaped dollar and a real span is never pulled
// into math.
func extractInlineDollars(text string, store *placeholder.Store) string {
	var sb strings.Builder
	last := 0
	open := -1
	before := len(*store)

	for i := 0; i < len(text); i++ {
		switch {
		case text[i] == '\n':
			open = -1
		case text[i] != '$' || (i > 0 && text[i-1] == '\\'):
			// literal character, or escaped dollar
		case open < 0:
			open = i
		case i == open+1:
			// empty body, treat the second $ as a new opener
			open = i
		default:
			sb.WriteString(text[last:open])
			*store = append(*store, normalizeSpan(text[open:i+1]))
			sb.WriteString(placeholder.Token(placeholder.Math, len(*store)-1))
			last = i + 1
			open = -1
		}
	}

	if n := len(*store) - before; n > 0 {
		logger.Debug("extracted inline dollar spans", logger.Int("count", n))
	}
	if last == 0 {
		return text
	}
	sb.WriteString(text[last:])
	return sb.String()
}

// normalizeSpan applies the per-span fixes, scoped strictly to the matched
// span, and wraps display spans in the block container.
func normalizeSpan(span string) string {
	open, body, closing := splitDelimiters(span)

	if open == "(" {
		// Tolerated malformed open delimiter; the typesetter copes, but it
		// is worth a trace when debugging rendering complaints.
		logger.Debug("math span opened with bare parenthesis", logger.String("span", span))
		open = `\(`
	}

	body = strings.ReplaceAll(body, "÷", `\div `)
	body = strings.ReplaceAll(body, "<", "&lt;")
	body = strings.ReplaceAll(body, ">", "&gt;")
	body = trailingPercentRe.ReplaceAllString(body, "")
	body = bmBracedRe.ReplaceAllString(body, `\boldsymbol{$1}`)
	body = bmBareRe.ReplaceAllString(body, `\boldsymbol{$1}`)
	body = strings.ReplaceAll(body, `\coloneqq`, `:=`)

	if open == `\[` || open == "$$" {
		body = " " + strings.TrimSpace(body) + " "
		return DisplayOpen + open + body + closing + DisplayClose
	}
	return open + body + closing
}

// splitDelimiters separates a matched span into its opening delimiter, body
// and closing delimiter.
func splitDelimiters(span string) (open, body, closing string) {
	switch {
	case strings.HasPrefix(span, `\(`):
		return `\(`, span[2 : len(span)-2], `\)`
	case strings.HasPrefix(span, `\[`):
		return `\[`, span[2 : len(span)-2], `\]`
	case strings.HasPrefix(span, "$$"):
		return "$$", span[2 : len(span)-2], "$$"
	case strings.HasPrefix(span, "("):
		return "(", span[1 : len(span)-2], `\)`
	case strings.HasPrefix(span, "$"):
		return "$", span[1 : len(span)-1], "$"
	}
	return "", span, ""
}

// countUnescapedDollars counts $ characters not preceded by a backslash.
func countUnescapedDollars(text string) int {
	n := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '$' && (i == 0 || text[i-1] != '\\') {
			n++
		}
	}
	return n
}
