package types

// TextChunk represents one semantically bounded section of an over-length
// input text, produced by the chunker before embedding. Chunk vectors are
// pooled back into a single item vector by the embedding service.
type TextChunk struct {
	// Identification
	Index int // 0-based position within the source text

	// Content
	Content    string
	TokenCount int
}

// EstimateTokens estimates the number of tokens in the chunk.
// Uses a simple heuristic: characters / 4.
func (c *TextChunk) EstimateTokens() int {
	// Average English word is ~4 chars; good enough for budget checks.
	// For more accuracy, could use a tokenizer library.
	c.TokenCount = len(c.Content) / 4
	return c.TokenCount
}

// Validate checks if the chunk content is valid
func (c *TextChunk) Validate() error {
	if c.Content == "" {
		return ErrEmptyContent
	}

	if c.Index < 0 {
		return ErrInvalidChunkIndex
	}

	return nil
}
