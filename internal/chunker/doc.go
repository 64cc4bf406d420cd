// Package chunker divides over-length text into semantic chunks for
// embedding.
//
// Providers cap their input window, so texts past the budget are split
// before generation and the chunk vectors pooled back into one item
// vector by the embedding service. Splitting is deterministic: the same
// input always produces the same chunks, which keeps fingerprint-keyed
// caching stable.
//
// # Basic Usage
//
//	c := chunker.New(2048)
//	if !c.Fits(text) {
//	    for _, chunk := range c.Chunk(text) {
//	        fmt.Printf("chunk %d: %d tokens\n", chunk.Index, chunk.TokenCount)
//	    }
//	}
//
// # Chunking Strategy
//
// Boundaries are tried coarsest first:
//   - Paragraphs: blank-line separated blocks stay whole when they fit
//   - Sentences: over-budget paragraphs split after terminal punctuation
//   - Hard split: a single over-budget sentence cuts at the rune budget
//
// Pieces are then packed greedily back into chunks up to the budget, so
// short paragraphs share a chunk instead of each costing a provider call.
//
// # Token Estimation
//
// Token counts use a simple heuristic (chars/4). For more accuracy, a
// proper tokenizer library could be substituted; the budget default is
// conservative enough that the heuristic never overruns real provider
// windows.
package chunker
