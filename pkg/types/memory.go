package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Tier represents the importance classification of a memory item.
// The tier controls both the decay protection and the search boost
// applied during ranking.
type Tier string

const (
	TierConstitutional Tier = "constitutional"
	TierCritical       Tier = "critical"
	TierImportant      Tier = "important"
	TierNormal         Tier = "normal"
	TierTemporary      Tier = "temporary"
	TierDeprecated     Tier = "deprecated"
)

// ParseTier converts a string into a Tier, defaulting empty input to
// TierNormal.
func ParseTier(s string) (Tier, error) {
	if s == "" {
		return TierNormal, nil
	}
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if err := t.Validate(); err != nil {
		return "", err
	}
	return t, nil
}

// Validate checks if the tier is one of the known values
func (t Tier) Validate() error {
	switch t {
	case TierConstitutional, TierCritical, TierImportant, TierNormal, TierTemporary, TierDeprecated:
		return nil
	default:
		return ErrInvalidTier
	}
}

// Protected reports whether the tier is exempt from time decay.
func (t Tier) Protected() bool {
	return t.DecayRate() == 1.0
}

// DecayRate returns the per-turn decay multiplier for the tier.
// Protected tiers never decay.
func (t Tier) DecayRate() float64 {
	switch t {
	case TierNormal:
		return 0.80
	case TierTemporary:
		return 0.60
	default:
		// constitutional, critical, important, deprecated
		return 1.0
	}
}

// SearchBoost returns the rank-time multiplier for the tier.
func (t Tier) SearchBoost() float64 {
	switch t {
	case TierConstitutional:
		return 2.0
	case TierCritical:
		return 1.5
	case TierImportant:
		return 1.2
	case TierTemporary:
		return 0.8
	case TierDeprecated:
		return 0
	default:
		return 1.0
	}
}

// DefaultBaseScore returns the initial relevance score assigned at save
// time when the caller does not supply one.
func (t Tier) DefaultBaseScore() float64 {
	switch t {
	case TierConstitutional:
		return 1.0
	case TierCritical:
		return 0.9
	case TierImportant:
		return 0.7
	case TierTemporary:
		return 0.3
	case TierDeprecated:
		return 0.1
	default:
		return 0.5
	}
}

// State represents the lifecycle stage of a memory item, driven by time
// since last access and by explicit validation events.
type State string

const (
	StateHot      State = "hot"
	StateWarm     State = "warm"
	StateCold     State = "cold"
	StateDormant  State = "dormant"
	StateArchived State = "archived"
)

// Age boundaries between lifecycle states.
const (
	WarmMaxAge    = 7 * 24 * time.Hour
	ColdMaxAge    = 30 * 24 * time.Hour
	DormantMaxAge = 90 * 24 * time.Hour
)

// ParseState converts a string into a State.
func ParseState(s string) (State, error) {
	st := State(strings.ToLower(strings.TrimSpace(s)))
	if err := st.Validate(); err != nil {
		return "", err
	}
	return st, nil
}

// Validate checks if the state is one of the known values
func (s State) Validate() error {
	switch s {
	case StateHot, StateWarm, StateCold, StateDormant, StateArchived:
		return nil
	default:
		return ErrInvalidState
	}
}

// Order returns the state's position in the promotion order. Higher is
// warmer; promotion increases the order, demotion decreases it.
func (s State) Order() int {
	switch s {
	case StateHot:
		return 4
	case StateWarm:
		return 3
	case StateCold:
		return 2
	case StateDormant:
		return 1
	default:
		return 0
	}
}

// StateForAge maps time since last access onto a lifecycle state.
// StateHot is never returned here: hot is a session property, decided by
// the engine from the item's session id, not from elapsed time.
func StateForAge(sinceAccess time.Duration) State {
	switch {
	case sinceAccess < WarmMaxAge:
		return StateWarm
	case sinceAccess < ColdMaxAge:
		return StateCold
	case sinceAccess < DormantMaxAge:
		return StateDormant
	default:
		return StateArchived
	}
}

// MemoryItem represents a stored memory with its ranking metadata
type MemoryItem struct {
	// Identification
	ID  int64  // storage rowid
	UID string // stable external identity (UUID)

	// Content
	Content     string
	Fingerprint string // SHA-256 hex of normalized content, dedup key
	Scope       string

	// Ranking
	Tier      Tier
	BaseScore float64
	State     State

	// Access tracking
	SessionID      string
	LastAccessTurn int64
	LastAccessAt   time.Time

	// Timestamps
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizeContent canonicalizes text for fingerprinting: lowercased,
// whitespace runs collapsed to single spaces, outer space trimmed.
func NormalizeContent(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// FingerprintContent computes the dedup fingerprint for a piece of content.
func FingerprintContent(s string) string {
	sum := sha256.Sum256([]byte(NormalizeContent(s)))
	return hex.EncodeToString(sum[:])
}

// ComputeFingerprint fills in the item's fingerprint from its content.
func (m *MemoryItem) ComputeFingerprint() {
	m.Fingerprint = FingerprintContent(m.Content)
}

// Validate performs comprehensive validation of the memory item
func (m *MemoryItem) Validate() error {
	if strings.TrimSpace(m.Content) == "" {
		return ErrEmptyContent
	}

	if err := m.Tier.Validate(); err != nil {
		return err
	}

	if err := m.State.Validate(); err != nil {
		return err
	}

	if m.BaseScore < 0 || m.BaseScore > 1 {
		return ErrInvalidBaseScore
	}

	if m.Fingerprint == "" {
		return ErrMissingFingerprint
	}

	if m.Scope == "" {
		return ErrMissingScope
	}

	return nil
}
