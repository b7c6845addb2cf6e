package ingest

import (
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize is the target chunk length in bytes.
const DefaultChunkSize = 5000

// minBreakRatio keeps break points out of the first third of a chunk, so a
// lucky paragraph boundary near the start does not produce tiny chunks.
const minBreakRatio = 0.3

// SplitText splits text into chunks of roughly chunkSize bytes, preferring
// to break at code block fences, then paragraph boundaries, then sentence
// ends. Empty chunks are dropped.
func SplitText(text string, chunkSize int) []string {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	var chunks []string
	for start := 0; start < len(text); {
		end := start + chunkSize
		if end >= len(text) {
			if chunk := strings.TrimSpace(text[start:]); chunk != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		window := text[start:end]
		minBreak := int(float64(chunkSize) * minBreakRatio)

		cut := len(window)
		if i := strings.LastIndex(window, "```"); i > minBreak {
			cut = i
		} else if i := strings.LastIndex(window, "\n\n"); i > minBreak {
			cut = i
		} else if i := strings.LastIndex(window, ". "); i > minBreak {
			cut = i + 1
		}

		// The hard cut lands at an arbitrary byte offset; back off so the
		// next chunk starts on a rune boundary and neither half holds a
		// torn multi-byte rune.
		cut = runeCut(text, start, cut)

		if chunk := strings.TrimSpace(window[:cut]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		start += cut
	}

	return chunks
}

// runeCut moves cut backwards until text[start+cut] is a rune start.
// A rune spans at most four bytes, so this backs off at most three.
func runeCut(text string, start, cut int) int {
	for cut > 0 && start+cut < len(text) && !utf8.RuneStart(text[start+cut]) {
		cut--
	}
	return cut
}
