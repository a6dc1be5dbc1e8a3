package pipeline

import (
	"regexp"
	"strings"
)

var (
	thinkClosedRe = regexp.MustCompile(`(?s)<think>(.*?)</think>`)
	thinkOpenRe   = regexp.MustCompile(`(?s)<think>(.*)$`)
)

// transformThinkBlocks converts reasoning-trace tags into blockquote lines.
// Closed pairs are handled first; an unterminated opening tag then consumes
// all remaining text. The closed-pair pass leaves no <think> behind, so the
// open-tag pass cannot double-process converted content.
func transformThinkBlocks(text string) string {
	text = thinkClosedRe.ReplaceAllStringFunc(text, func(m string) string {
		inner := thinkClosedRe.FindStringSubmatch(m)[1]
		return quoteLines(inner)
	})
	text = thinkOpenRe.ReplaceAllStringFunc(text, func(m string) string {
		inner := thinkOpenRe.FindStringSubmatch(m)[1]
		return quoteLines(inner)
	})
	return text
}

// quoteLines trims each line of the reasoning content and prefixes it with a
// blockquote marker. Blank lines become bare markers so the blockquote is
// not split.
func quoteLines(content string) string {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			lines[i] = ">"
		} else {
			lines[i] = "> " + line
		}
	}
	return strings.Join(lines, "\n") + "\n"
}
