package chunker

import (
	"strings"

	"github.com/engramlabs/engram/pkg/types"
)

const (
	// DefaultMaxTokens is the target maximum token count per chunk.
	// Conservative against the smallest provider input window.
	DefaultMaxTokens = 2048

	// TokensPerChar is the heuristic for estimating tokens (chars/4)
	TokensPerChar = 4
)

// Chunker splits over-length text into semantically bounded chunks.
// Splitting prefers paragraph boundaries, then sentence boundaries, and
// only hard-splits when a single sentence exceeds the budget. Identical
// input always yields identical chunks.
type Chunker struct {
	maxTokens int
}

// New creates a Chunker with the given token budget per chunk.
// A non-positive budget selects DefaultMaxTokens.
func New(maxTokens int) *Chunker {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &Chunker{maxTokens: maxTokens}
}

// MaxTokens returns the per-chunk token budget.
func (c *Chunker) MaxTokens() int {
	return c.maxTokens
}

// Fits reports whether the text fits in a single chunk.
func (c *Chunker) Fits(text string) bool {
	return EstimateTokenCount(text) <= c.maxTokens
}

// Chunk splits text into chunks within the token budget. Blank input
// yields nil; input within the budget yields a single chunk.
func (c *Chunker) Chunk(text string) []*types.TextChunk {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if c.Fits(text) {
		return []*types.TextChunk{c.newChunk(0, text)}
	}

	// Break into budget-sized pieces at the finest boundary required.
	var pieces []string
	for _, para := range splitParagraphs(text) {
		if EstimateTokenCount(para) <= c.maxTokens {
			pieces = append(pieces, para)
			continue
		}
		for _, sent := range splitSentences(para) {
			if EstimateTokenCount(sent) <= c.maxTokens {
				pieces = append(pieces, sent)
				continue
			}
			pieces = append(pieces, hardSplit(sent, c.maxTokens*TokensPerChar)...)
		}
	}

	// Greedily pack consecutive pieces back together up to the budget.
	chunks := make([]*types.TextChunk, 0, len(pieces))
	var current strings.Builder
	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, c.newChunk(len(chunks), current.String()))
		current.Reset()
	}
	for _, piece := range pieces {
		joined := current.Len() + len("\n\n") + len(piece)
		if current.Len() > 0 && joined/TokensPerChar > c.maxTokens {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(piece)
	}
	flush()

	return chunks
}

func (c *Chunker) newChunk(index int, content string) *types.TextChunk {
	chunk := &types.TextChunk{
		Index:   index,
		Content: content,
	}
	chunk.EstimateTokens()
	return chunk
}

// splitParagraphs splits on blank lines. CRLF input is normalized first.
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var paras []string
	var current []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				paras = append(paras, strings.Join(current, "\n"))
				current = current[:0]
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		paras = append(paras, strings.Join(current, "\n"))
	}

	return paras
}

// splitSentences splits a paragraph after terminal punctuation followed by
// whitespace. Terminators glued to the next word do not split, so dotted
// identifiers and decimals survive.
func splitSentences(para string) []string {
	var sentences []string
	runes := []rune(para)
	start := 0
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
			if i+1 >= len(runes) || runes[i+1] == ' ' || runes[i+1] == '\n' || runes[i+1] == '\t' {
				s := strings.TrimSpace(string(runes[start : i+1]))
				if s != "" {
					sentences = append(sentences, s)
				}
				start = i + 1
			}
		}
	}
	if start < len(runes) {
		s := strings.TrimSpace(string(runes[start:]))
		if s != "" {
			sentences = append(sentences, s)
		}
	}

	return sentences
}

// hardSplit cuts text into maxChars-rune segments. Last resort for a
// single sentence that exceeds the whole chunk budget.
func hardSplit(text string, maxChars int) []string {
	if maxChars <= 0 {
		return []string{text}
	}

	runes := []rune(text)
	segments := make([]string, 0, len(runes)/maxChars+1)
	for start := 0; start < len(runes); start += maxChars {
		end := start + maxChars
		if end > len(runes) {
			end = len(runes)
		}
		segments = append(segments, string(runes[start:end]))
	}

	return segments
}

// EstimateTokenCount estimates the number of tokens in a string
func EstimateTokenCount(text string) int {
	return len(text) / TokensPerChar
}
