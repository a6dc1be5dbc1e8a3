// Package citation normalizes inline citation markers of the form
// [n](cite:payload) into W3C text-fragment links and groups consecutive
// markers for display.
//
// The payload may contain unescaped parentheses, so the closing parenthesis
// of a marker is found by tracking parenthesis depth, not by the first ')'
// encountered. This is the one place in the render pipeline where a regex is
// structurally inadequate and a manual scan is required.
package citation

import (
	"net/url"
	"regexp"
	"strings"

	"chat-renderer/internal/logger"
)

const (
	// Scheme is the reserved URI scheme carried by raw citation markers.
	Scheme = "cite:"
	// FragmentPrefix is the text-fragment target emitted for normalized
	// markers; browsers resolve it by scrolling to the quoted text.
	FragmentPrefix = "#:~:text="
	// GroupSeparator joins consecutive citation markers.
	GroupSeparator = "｜"
)

// prefixRe matches the literal head of a citation marker up to and including
// the scheme; the payload that follows is scanned manually.
var prefixRe = regexp.MustCompile(`\[(\d+)\]\(cite:`)

// markerRe matches one already-normalized citation marker.
var markerRe = regexp.MustCompile(`\[\d+\]\(#:~:text=[^)\s]*\)`)

// groupRe matches a run of two or more normalized markers separated only by
// whitespace. Whitespace after the final marker is not part of the match, so
// paragraph breaks following a run are preserved.
var groupRe = regexp.MustCompile(
	`\[\d+\]\(#:~:text=[^)\s]*\)(?:\s+\[\d+\]\(#:~:text=[^)\s]*\))+`)

// Normalize rewrites every well-formed citation marker in text into the
// text-fragment form [n](#:~:text=<encoded payload>) and returns the result
// together with the number of markers rewritten.
//
// A marker whose payload has no balanced closing parenthesis before a
// newline or end of text is malformed; it is left untouched and scanning
// resumes after the failed prefix. Normalize never fails.
func Normalize(text string) (string, int) {
	var sb strings.Builder
	count := 0
	pos := 0

	for pos < len(text) {
		loc := prefixRe.FindStringSubmatchIndex(text[pos:])
		if loc == nil {
			sb.WriteString(text[pos:])
			break
		}

		start := pos + loc[0]
		prefixEnd := pos + loc[1]
		number := text[pos+loc[2] : pos+loc[3]]

		end := scanPayloadEnd(text, prefixEnd)
		if end < 0 {
			// Malformed marker: emit up to the prefix verbatim and keep
			// scanning after it so neighbors are unaffected.
			logger.Debug("citation marker without balanced close, left as-is",
				logger.String("number", number))
			sb.WriteString(text[pos:prefixEnd])
			pos = prefixEnd
			continue
		}

		sb.WriteString(text[pos:start])
		sb.WriteString("[")
		sb.WriteString(number)
		sb.WriteString("](")
		sb.WriteString(FragmentPrefix)
		sb.WriteString(encodePayload(text[prefixEnd:end]))
		sb.WriteString(")")
		count++
		pos = end + 1
	}

	if count > 0 {
		logger.Debug("normalized citation markers", logger.Int("count", count))
	}
	return sb.String(), count
}

// scanPayloadEnd returns the index of the parenthesis closing the marker
// whose payload starts at from, or -1 when the marker is malformed. Depth
// starts at 1 for the marker's own opening parenthesis; a newline before
// depth reaches zero aborts the candidate.
func scanPayloadEnd(text string, from int) int {
	depth := 1
	for i := from; i < len(text); i++ {
		switch text[i] {
		case '\n':
			return -1
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// encodePayload percent-encodes a raw citation payload. A payload that
// round-trips through percent-decoding is decoded first and re-encoded, so
// already-encoded and plain-text payloads normalize to the same form.
// Decode failures (malformed escapes) fall back to encoding the raw trimmed
// text directly; encoding never fails.
func encodePayload(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if decoded, err := url.PathUnescape(trimmed); err == nil {
		return escapeFragment(decoded)
	}
	return escapeFragment(trimmed)
}

// escapeFragment percent-encodes s for use inside a text fragment. It is
// stricter than url.PathEscape: parentheses, commas and ampersands are
// syntax characters either for Markdown links or for the fragment directive
// itself, so everything outside [A-Za-z0-9-._~] is escaped.
func escapeFragment(s string) string {
	const hex = "0123456789ABCDEF"
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(hex[c>>4])
		sb.WriteByte(hex[c&0x0f])
	}
	return sb.String()
}

// GroupConsecutive joins every run of two or more normalized citation
// markers separated only by whitespace with GroupSeparator. Whitespace
// outside the run is untouched, so a trailing newline after the last marker
// survives grouping.
func GroupConsecutive(text string) string {
	return groupRe.ReplaceAllStringFunc(text, func(run string) string {
		markers := markerRe.FindAllString(run, -1)
		return strings.Join(markers, GroupSeparator)
	})
}
