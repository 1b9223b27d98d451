// Package sanitize strips model-internal reasoning markup from synthesized
// answers before they are cached or returned to a caller.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	// thinkBlockRe matches a paired reasoning block, non-greedily, across
	// newlines, case-insensitively.
	thinkBlockRe = regexp.MustCompile(`(?is)<think>.*?</think>`)

	// thinkCloseRe matches a closing reasoning marker, for fallback
	// recovery when a block is unpaired or swallows the whole text.
	thinkCloseRe = regexp.MustCompile(`(?i)</think>`)

	// tagRe matches any residual markup-style bracketed tag.
	tagRe = regexp.MustCompile(`<[^>]*>`)

	// spaceRe collapses whitespace runs.
	spaceRe = regexp.MustCompile(`\s+`)
)

// Clean removes reasoning blocks and residual markup from raw model output
// and normalizes whitespace.
//
// Fallback policy, in order: if cleaning leaves nothing but the raw text was
// non-empty, recover everything after the last closing reasoning marker; if
// that is also empty, return the raw text unmodified. A caller never receives
// an empty answer when the model produced any content at all.
func Clean(raw string) string {
	if raw == "" {
		return ""
	}

	cleaned := thinkBlockRe.ReplaceAllString(raw, "")
	cleaned = tagRe.ReplaceAllString(cleaned, "")
	cleaned = normalize(cleaned)

	if cleaned != "" {
		return cleaned
	}

	// The whole response was reasoning markup. Try whatever trails the
	// last close marker before giving back the raw text.
	if locs := thinkCloseRe.FindAllStringIndex(raw, -1); len(locs) > 0 {
		tail := raw[locs[len(locs)-1][1]:]
		if recovered := normalize(tagRe.ReplaceAllString(tail, "")); recovered != "" {
			return recovered
		}
	}

	return raw
}

// normalize collapses whitespace runs to single spaces and trims the ends.
func normalize(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
