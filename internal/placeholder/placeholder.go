// Package placeholder implements indexed placeholder tokens for protecting
// regions of a chat message while other rewrite passes run over the text.
//
// A protected region is replaced by a token of the form %%<CATEGORY>_<i>%%.
// Tokens contain only uppercase letters, digits and underscores between the
// %% delimiters, so they are inert with respect to every downstream pass:
// they match none of `, $, [, ], (, ) nor any HTML-significant character.
// If a user message happens to contain a literal token, restoration will
// misfire for that token; this is a documented limitation and is not
// corrected.
package placeholder

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"chat-renderer/internal/logger"
)

// Category names a class of protected regions. Indices are unique per
// category per pipeline run and are assigned in first-seen order.
type Category string

const (
	CodeBlock  Category = "CODE_BLOCK"
	InlineCode Category = "INLINE_CODE"
	Link       Category = "LINK"
	Image      Category = "IMAGE"
	Math       Category = "MATH"
)

// Store accumulates the protected regions of one category for a single
// pipeline run. Index i in the store corresponds to token %%<CATEGORY>_i%%.
// A store is owned by exactly one run: extraction appends, restoration
// reads, nothing is shared across runs.
type Store []string

// Token returns the placeholder token for the given category and index.
func Token(cat Category, index int) string {
	return fmt.Sprintf("%%%%%s_%d%%%%", cat, index)
}

// tokenPattern returns the regexp matching every token of the category.
func tokenPattern(cat Category) *regexp.Regexp {
	return regexp.MustCompile(`%%` + string(cat) + `_(\d+)%%`)
}

// Extract finds all non-overlapping matches of pattern in text, appends each
// match to store in left-to-right order, and replaces each match with its
// token. The store may already be non-empty from a prior call in the same
// category; new regions continue the index sequence, supporting multi-pass
// extraction.
func Extract(text string, pattern *regexp.Regexp, cat Category, store *Store) string {
	return ExtractFunc(text, pattern, cat, store, nil)
}

// ExtractFunc is Extract with a per-match transform applied before the match
// is stored. Restoration then reinserts the transformed text. A nil
// transform stores the match verbatim.
func ExtractFunc(text string, pattern *regexp.Regexp, cat Category, store *Store, transform func(string) string) string {
	before := len(*store)
	result := pattern.ReplaceAllStringFunc(text, func(match string) string {
		if transform != nil {
			match = transform(match)
		}
		*store = append(*store, match)
		return Token(cat, len(*store)-1)
	})

	if n := len(*store) - before; n > 0 {
		logger.Debug("extracted protected regions",
			logger.String("category", string(cat)),
			logger.Int("count", n),
			logger.Int("storeSize", len(*store)))
	}
	return result
}

// Restore replaces every token of the category with the corresponding store
// entry. A token whose index is out of range is left in place unchanged;
// restoration never fails.
func Restore(text string, cat Category, store Store) string {
	prefix := "%%" + string(cat) + "_"
	if !strings.Contains(text, prefix) {
		return text
	}

	restored := 0
	result := tokenPattern(cat).ReplaceAllStringFunc(text, func(token string) string {
		idx, err := strconv.Atoi(token[len(prefix) : len(token)-2])
		if err != nil || idx < 0 || idx >= len(store) {
			logger.Warn("placeholder token has no stored region",
				logger.String("category", string(cat)),
				logger.String("token", token))
			return token
		}
		restored++
		return store[idx]
	})

	if restored > 0 {
		logger.Debug("restored protected regions",
			logger.String("category", string(cat)),
			logger.Int("count", restored))
	}
	return result
}
