package ingest

import "strings"

const (
	// DefaultWindowChars is the default chunk window in characters.
	DefaultWindowChars = 1200
	// DefaultOverlapChars is the default overlap between adjacent windows.
	DefaultOverlapChars = 150
)

// ChunkText splits text into overlapping fixed-size character windows.
// Whitespace runs are collapsed to single spaces first, so offsets are
// character positions in the normalized text. The final window may be
// shorter than windowChars; blank input yields no chunks.
func ChunkText(text string, windowChars, overlapChars int) []string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return nil
	}

	stride := windowChars - overlapChars
	if stride < 1 {
		stride = 1
	}

	var chunks []string
	for i := 0; i < len(text); i += stride {
		end := i + windowChars
		if end >= len(text) {
			chunks = append(chunks, text[i:])
			break
		}
		chunks = append(chunks, text[i:end])
	}
	return chunks
}
