package types

import "errors"

// Domain errors for type validation
var (
	// Memory item errors
	ErrInvalidTier        = errors.New("invalid tier")
	ErrInvalidState       = errors.New("invalid state")
	ErrInvalidBaseScore   = errors.New("base score must be between 0 and 1")
	ErrMissingFingerprint = errors.New("fingerprint must be computed")
	ErrMissingScope       = errors.New("scope is required")
	ErrEmptyContent       = errors.New("content cannot be empty")

	// Search result errors
	ErrInvalidRank       = errors.New("rank must be >= 1")
	ErrMissingMemory     = errors.New("memory item is required")
	ErrInvalidChunkIndex = errors.New("chunk index must be >= 0")
)
