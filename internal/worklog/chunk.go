package worklog

// DefaultChunkSize is the longest text block the summary store accepts
const DefaultChunkSize = 2000

// Chunk splits text into consecutive segments of at most maxLen characters
// (runes). Joining the segments gives back text exactly. A non-positive
// maxLen means DefaultChunkSize; empty text yields no segments.
func Chunk(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultChunkSize
	}
	if text == "" {
		return nil
	}

	var chunks []string
	start, count := 0, 0
	for i := range text {
		if count == maxLen {
			chunks = append(chunks, text[start:i])
			start, count = i, 0
		}
		count++
	}
	return append(chunks, text[start:])
}
