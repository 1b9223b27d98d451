// Package chunk splits extracted document text into overlapping windows
// sized for embedding. Splitting is a pure function: identical input and
// parameters always produce an identical chunk sequence.
package chunk

import (
	"strings"
)

const (
	// DefaultTargetSize is the target chunk length in characters.
	DefaultTargetSize = 500

	// DefaultOverlap is the number of characters shared between
	// consecutive chunks.
	DefaultOverlap = 50
)

// Split cuts text into chunks of roughly targetSize characters with the
// given overlap between consecutive chunks.
//
// Window boundaries snap backward to the nearest sentence terminator or
// newline when one falls past the midpoint of the window; otherwise the hard
// cut stands. Empty or whitespace-only input yields no chunks, and chunks
// that are empty after trimming are dropped.
func Split(text string, targetSize, overlap int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if targetSize <= 0 {
		targetSize = DefaultTargetSize
	}
	if overlap < 0 {
		overlap = DefaultOverlap
	}
	if overlap >= targetSize {
		overlap = targetSize / 2
	}

	runes := []rune(text)
	length := len(runes)

	var chunks []string
	start := 0
	for start < length {
		end := start + targetSize
		if end > length {
			end = length
		}

		// Snap to a sentence or line boundary, but only when the boundary
		// is past half the target size: degenerate tiny chunks are worse
		// than a hard cut.
		if end < length {
			if bp := lastBoundary(runes[start:end]); bp > targetSize/2 {
				end = start + bp + 1
			}
		}

		if c := strings.TrimSpace(string(runes[start:end])); c != "" {
			chunks = append(chunks, c)
		}

		// Overlap the next window with the previous one. If boundary
		// snapping would stall the walk, force the start past the cut to
		// guarantee forward progress.
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks
}

// lastBoundary returns the index of the last sentence terminator or newline
// in window, or -1 if none exists.
func lastBoundary(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		switch window[i] {
		case '.', '!', '?', '\n':
			return i
		}
	}
	return -1
}
