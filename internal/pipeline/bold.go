package pipeline

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"
)

// Bold-marker repair runs as a fixed sequence of ordered passes. The first
// pass rewrites every well-formed **bold** span into sentinel-delimited form
// so later passes can match span boundaries without re-matching `**` (which
// invites catastrophic re-fixing of already-fixed spans); the last pass
// resolves the sentinels back. The sentinel pairs use a NUL prefix, a
// two-byte sequence that cannot appear in legitimate chat text.
const (
	boldOpen  = "\x00\x02"
	boldClose = "\x00\x03"
)

var (
	boldSpanRe = regexp.MustCompile(`\*\*([^*\n]+?)\*\*`)

	boldInnerLeadRe  = regexp.MustCompile(boldOpen + `[ \t]+`)
	boldInnerTrailRe = regexp.MustCompile(`[ \t]+` + boldClose)

	// Punctuation sitting just inside the closing marker breaks emphasis
	// flanking. Wide punctuation is moved outside the span; narrow
	// punctuation keeps its place but gains a following space.
	boldTrailPunctRe  = regexp.MustCompile(`\p{P}` + boldClose)
	boldNarrowCloseRe = regexp.MustCompile(`([:;,.!?])` + boldClose + `(\S)`)
)

// fixBoldFormat corrects spacing artifacts around **bold** markers. The
// passes are order-dependent and the whole function is idempotent: running
// it on its own output is a no-op.
func fixBoldFormat(text string) string {
	if !strings.Contains(text, "**") {
		return text
	}

	// 1. Mark well-formed spans with sentinels.
	text = boldSpanRe.ReplaceAllString(text, boldOpen+"$1"+boldClose)

	// 2. Whitespace just inside the markers prevents emphasis parsing.
	text = boldInnerLeadRe.ReplaceAllString(text, boldOpen)
	text = boldInnerTrailRe.ReplaceAllString(text, boldClose)

	// 3. Move full-width trailing punctuation (：，。…) outside the span.
	text = boldTrailPunctRe.ReplaceAllStringFunc(text, func(m string) string {
		r, _ := utf8.DecodeRuneInString(m)
		switch width.LookupRune(r).Kind() {
		case width.EastAsianFullwidth, width.EastAsianWide:
			return boldClose + string(r)
		}
		return m
	})

	// 4. Narrow trailing punctuation stays inside but needs a space after
	// the closing marker to restore right-flanking.
	text = boldNarrowCloseRe.ReplaceAllString(text, "$1"+boldClose+" $2")

	// 5. Resolve sentinels.
	text = strings.ReplaceAll(text, boldOpen, "**")
	text = strings.ReplaceAll(text, boldClose, "**")
	return text
}
