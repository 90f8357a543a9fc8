package index

// Chunking parameters. Retrieval chunks are small enough to embed whole;
// summarization input chunks are larger because they only pass through the
// model, not the embedder.
const (
	// ChunkSize is the character size of retrieval chunks.
	ChunkSize = 512

	// SummaryChunkSize is the character size of chunks fed to the
	// summarizer before embedding.
	SummaryChunkSize = 1024

	// ChunkOverlap is the number of characters shared between adjacent
	// chunks, so sentences spanning a boundary stay searchable.
	ChunkOverlap = 50
)

// SplitText splits s into overlapping chunks of at most size runes, with
// overlap runes shared between neighbors. Returns nil for empty input.
func SplitText(s string, size, overlap int) []string {
	if s == "" {
		return nil
	}
	if size <= 0 {
		size = ChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(s)
	if len(runes) <= size {
		return []string{s}
	}

	step := size - overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
