// Package types provides shared type definitions for the Engram memory
// server.
//
// This package defines domain types used across multiple components of
// Engram, including memory items, importance tiers, lifecycle states,
// text chunks, and search results.
//
// # Core Types
//
// MemoryItem represents one stored memory with its ranking metadata:
//
//	item := &types.MemoryItem{
//	    UID:     uuid.NewString(),
//	    Content: "deploys go through the staging gate first",
//	    Scope:   "global",
//	    Tier:    types.TierImportant,
//	    State:   types.StateHot,
//	}
//	item.ComputeFingerprint()
//
// # Tiers and Decay
//
// A memory's tier decides how fast its relevance decays and how strongly
// it is boosted at rank time. Protected tiers (constitutional, critical,
// important, deprecated) have a decay rate of 1.0 and never lose score:
//
//	types.TierNormal.DecayRate()    // 0.80 per elapsed turn
//	types.TierTemporary.DecayRate() // 0.60 per elapsed turn
//	types.TierCritical.DecayRate()  // 1.0, protected
//
// # Lifecycle States
//
// Items move hot -> warm -> cold -> dormant -> archived as time passes
// since their last access. StateForAge maps elapsed time onto a state;
// hot is a session property decided by the engine, never by elapsed time:
//
//	types.StateForAge(48 * time.Hour)      // StateWarm
//	types.StateForAge(40 * 24 * time.Hour) // StateDormant
//
// # Fingerprints
//
// Content is deduplicated by a SHA-256 fingerprint over normalized text
// (lowercased, whitespace collapsed), so trivial formatting differences
// hash identically:
//
//	types.FingerprintContent("Hello,  World") == types.FingerprintContent("hello, world")
//
// # Validation
//
// Domain types implement validation methods to ensure data integrity:
//
//	if err := item.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Search Results
//
// SearchResult combines the stored item with its scoring breakdown; the
// enclosing SearchResponse carries the degraded-mode contract (keyword-only
// results are flagged, never silently substituted).
package types
