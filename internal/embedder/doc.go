// Package embedder turns text into vectors through a chain of
// embedding providers with caching, retries, health tracking, and a
// guaranteed offline fallback.
//
// # Basic Usage
//
// Create a service and embed text:
//
//	svc := embedder.NewService(embedder.Config{}, logger)
//	defer svc.Close()
//
//	vec, prof, err := svc.Embed(ctx, "content to embed", embedder.TaskDocument)
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Printf("%d-dim vector from %s\n", len(vec), prof)
//
// The first call resolves the provider chain: cloud providers whose
// credentials are present, in precedence order, then the offline
// provider as the fallback of last resort. Resolution is lazy and
// shared, so concurrent first calls warm the chain exactly once.
//
// # Provider Selection and Fallback
//
// With no configuration the chain is built from the environment:
//
//  1. If ENGRAM_EMBEDDING_PROVIDER is set → use that provider only
//  2. Else if GEMINI_API_KEY is set → Gemini
//  3. Else if OPENAI_API_KEY is set → OpenAI
//  4. Else if OLLAMA_HOST is set → local Ollama instance
//  5. Always → offline hash provider as the last candidate
//
// Forcing a provider pins the chain to it alone, and its failures
// surface instead of silently falling back:
//
//	svc := embedder.NewService(embedder.Config{Provider: "openai"}, logger)
//
// Each request walks the chain in order. A provider that fails after
// retries, or that the health monitor has marked unhealthy, is passed
// over for the next candidate. The offline provider accepts any input,
// so auto-resolved chains cannot exhaust.
//
// # Batches
//
// EmbedBatch preserves input order and serves the whole batch from a
// single provider, so every vector in the result shares one profile:
//
//	vecs, prof, err := svc.EmbedBatch(ctx, texts, embedder.TaskDocument)
//	for i, vec := range vecs {
//		// vec embeds texts[i]
//	}
//
// Texts run in small concurrent groups with a pause between groups to
// stay under provider rate limits.
//
// # Caching
//
// Vectors are cached under a hash of task and text, so the same text
// embedded as a document and as a query occupies separate entries.
// Query entries are skipped once the cache passes 90% full, keeping
// long-lived document entries from being churned out by one-off
// searches. Switching providers flushes the cache, since vectors from
// different models are not comparable.
//
//	stats := svc.CacheStats()
//	fmt.Printf("hit rate: %d/%d\n", stats.Hits, stats.Hits+stats.Misses)
//
// # Health and Recovery
//
// Every provider call lands in a rolling window of outcomes. The
// window scores success rate, latency, and error rate together; a
// provider scoring under the unhealthy threshold is skipped until a
// recovery probe passes:
//
//	probed, recovered := svc.ProbeRecovery(ctx)
//
// A successful probe resets the provider's window, so one good probe
// restores it immediately rather than waiting for the window to churn
// through old failures.
//
// # Offline Mode
//
// With no credentials and no local model the offline provider serves
// deterministic hash-derived vectors:
//
//	p := embedder.NewOfflineProvider()
//	vecs, _ := p.Embed(ctx, []string{"any text"}, embedder.TaskDocument)
//
// Hash vectors carry no semantic meaning, but they keep every write
// and read path exercisable, and search degrades to keyword matching
// instead of failing.
package embedder
