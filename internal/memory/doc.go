// Package memory implements the ranking engine that decides which
// stored memories surface for a query and how their relevance ages.
//
// # Model
//
// Every memory carries an importance tier (constitutional, critical,
// important, normal, temporary, deprecated) and a lifecycle state
// (hot, warm, cold, dormant, archived). The tier is assigned at save
// time and expresses how much the content matters; the state tracks
// how recently the memory was touched. Hot means "accessed in the
// live session": each Engine owns a session ID, and touching a memory
// binds it to that session. A daily sweep walks the clock-driven
// states (warm within a week, cold within a month, dormant within
// ninety days, archived beyond that).
//
// # Ranking
//
// Search fuses vector similarity and keyword full-text rankings with
// reciprocal rank fusion, then multiplies each fused score by the
// memory's effective score:
//
//	effective = baseScore x decayRate^turnsSinceAccess x tierBoost
//
// Protected tiers never decay. Constitutional memories lead every
// result list regardless of score or scope; deprecated memories never
// appear; archived memories appear only when asked for. Everything
// surfaced is promoted to hot in the current session.
//
// # Degradation
//
// The engine never makes retrieval availability depend on embedding
// availability. If no provider can embed a save, the item is stored
// without a vector and flagged; Reindex backfills vectors once a
// provider recovers. If no provider can embed a query, search falls
// back to keyword matching alone and flags the response.
package memory
