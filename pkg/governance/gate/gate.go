package gate

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"maturity-hq/steward/pkg/governance"
)

const (
	// DefaultTokenLength is the number of characters in a challenge token.
	DefaultTokenLength = 8

	// DefaultChallengeTTL is how long an issued challenge stays valid.
	DefaultChallengeTTL = 15 * time.Minute

	// TokenAlphabet omits characters that are easy to misread (0/O, 1/l/I).
	TokenAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz"
)

// OperationPurge is the operation name for purge confirmations.
const OperationPurge = "purge"

// Challenge is a server-issued confirmation token.
type Challenge struct {
	EngagementID string    `json:"engagement_id"`
	Operation    string    `json:"operation"`
	Token        string    `json:"token"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the challenge is no longer usable at now.
func (c *Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// ChallengeStore holds at most one challenge per key.
type ChallengeStore interface {
	// Put stores c under key, replacing any previous challenge.
	Put(ctx context.Context, key string, c *Challenge, ttl time.Duration) error

	// Take atomically returns and removes the challenge under key. It
	// returns nil when there is none.
	Take(ctx context.Context, key string) (*Challenge, error)
}

// Config configures a Gate.
type Config struct {
	TokenLength int
	TTL         time.Duration
}

// Gate issues and validates confirmation challenges.
type Gate struct {
	store       ChallengeStore
	tokenLength int
	ttl         time.Duration
	clock       governance.Clock
	logger      *slog.Logger
}

// New creates a gate over store. A nil config uses the defaults.
func New(store ChallengeStore, cfg *Config, clock governance.Clock) *Gate {
	g := &Gate{
		store:       store,
		tokenLength: DefaultTokenLength,
		ttl:         DefaultChallengeTTL,
		clock:       clock,
		logger:      slog.Default().With("component", "gate"),
	}
	if cfg != nil {
		if cfg.TokenLength > 0 {
			g.tokenLength = cfg.TokenLength
		}
		if cfg.TTL > 0 {
			g.ttl = cfg.TTL
		}
	}
	if g.clock == nil {
		g.clock = governance.SystemClock
	}
	return g
}

// IssueChallenge creates a fresh challenge for (engagementID, operation).
// Issuing again invalidates the previous challenge.
func (g *Gate) IssueChallenge(ctx context.Context, engagementID, operation string) (*Challenge, error) {
	if engagementID == "" {
		return nil, governance.NewValidationError("engagement_id", "required")
	}
	if operation == "" {
		return nil, governance.NewValidationError("operation", "required")
	}

	token, err := gonanoid.Generate(TokenAlphabet, g.tokenLength)
	if err != nil {
		return nil, fmt.Errorf("failed to generate challenge token: %w", err)
	}

	now := g.clock()
	c := &Challenge{
		EngagementID: engagementID,
		Operation:    operation,
		Token:        token,
		IssuedAt:     now,
		ExpiresAt:    now.Add(g.ttl),
	}
	if err := g.store.Put(ctx, challengeKey(engagementID, operation), c, g.ttl); err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	g.logger.Info("confirmation challenge issued",
		"engagement_id", engagementID,
		"operation", operation,
		"expires_at", c.ExpiresAt,
	)
	return c, nil
}

// Validate consumes the challenge for (engagementID, operation) and reports
// whether supplied matches it exactly. The challenge is gone afterwards
// whatever the outcome.
func (g *Gate) Validate(ctx context.Context, engagementID, operation, supplied string) (bool, error) {
	c, err := g.store.Take(ctx, challengeKey(engagementID, operation))
	if err != nil {
		return false, fmt.Errorf("failed to read challenge: %w", err)
	}
	if c == nil {
		g.logger.Warn("confirmation rejected: no outstanding challenge",
			"engagement_id", engagementID, "operation", operation)
		return false, nil
	}
	if c.Expired(g.clock()) {
		g.logger.Warn("confirmation rejected: challenge expired",
			"engagement_id", engagementID, "operation", operation)
		return false, nil
	}
	if supplied == "" || subtle.ConstantTimeCompare([]byte(c.Token), []byte(supplied)) != 1 {
		g.logger.Warn("confirmation rejected: token mismatch",
			"engagement_id", engagementID, "operation", operation)
		return false, nil
	}
	return true, nil
}

func challengeKey(engagementID, operation string) string {
	return engagementID + ":" + operation
}
