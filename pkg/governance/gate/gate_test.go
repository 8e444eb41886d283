package gate

import (
	"context"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"maturity-hq/steward/pkg/governance"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestGate(t *testing.T, store ChallengeStore) (*Gate, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Now().UTC()}
	return New(store, &Config{TTL: 15 * time.Minute}, clock.Now), clock
}

// TestGate_Validate tests the confirmation flows.
func TestGate_Validate(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		supplied func(token string) string
		advance  time.Duration
		want     bool
	}{
		{name: "exact match", supplied: func(tok string) string { return tok }, want: true},
		{name: "case differs", supplied: strings.ToLower, want: false},
		{name: "wrong token", supplied: func(string) string { return "nope" }, want: false},
		{name: "empty token", supplied: func(string) string { return "" }, want: false},
		{name: "expired", supplied: func(tok string) string { return tok }, advance: 15 * time.Minute, want: false},
		{name: "just before expiry", supplied: func(tok string) string { return tok }, advance: 15*time.Minute - time.Second, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, clock := newTestGate(t, NewMemoryStore())
			c, err := g.IssueChallenge(ctx, "eng-1", OperationPurge)
			if err != nil {
				t.Fatalf("IssueChallenge() failed: %v", err)
			}
			if len(c.Token) != DefaultTokenLength {
				t.Errorf("Expected token length %d, got %d", DefaultTokenLength, len(c.Token))
			}
			clock.Advance(tt.advance)

			supplied := tt.supplied(c.Token)
			if tt.name == "case differs" && supplied == c.Token {
				supplied = strings.ToUpper(c.Token)
				if supplied == c.Token {
					t.Skip("token has no letters")
				}
			}

			ok, err := g.Validate(ctx, "eng-1", OperationPurge, supplied)
			if err != nil {
				t.Fatalf("Validate() failed: %v", err)
			}
			if ok != tt.want {
				t.Errorf("Validate() = %v, want %v", ok, tt.want)
			}
		})
	}
}

// TestGate_SingleUse tests that a challenge is consumed by its first
// validation regardless of outcome.
func TestGate_SingleUse(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGate(t, NewMemoryStore())

	c, _ := g.IssueChallenge(ctx, "eng-1", OperationPurge)
	if ok, _ := g.Validate(ctx, "eng-1", OperationPurge, c.Token); !ok {
		t.Fatal("Expected first validation to succeed")
	}
	if ok, _ := g.Validate(ctx, "eng-1", OperationPurge, c.Token); ok {
		t.Error("Expected replayed token to be rejected")
	}

	c, _ = g.IssueChallenge(ctx, "eng-1", OperationPurge)
	if ok, _ := g.Validate(ctx, "eng-1", OperationPurge, "wrong"); ok {
		t.Fatal("Expected wrong token to be rejected")
	}
	if ok, _ := g.Validate(ctx, "eng-1", OperationPurge, c.Token); ok {
		t.Error("Expected correct token to be rejected after a failed attempt")
	}
}

// TestGate_ReissueReplaces tests that only the newest challenge is valid.
func TestGate_ReissueReplaces(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGate(t, NewMemoryStore())

	first, _ := g.IssueChallenge(ctx, "eng-1", OperationPurge)
	second, _ := g.IssueChallenge(ctx, "eng-1", OperationPurge)
	if first.Token == second.Token {
		t.Skip("token collision")
	}
	if ok, _ := g.Validate(ctx, "eng-1", OperationPurge, first.Token); ok {
		t.Error("Expected superseded token to be rejected")
	}

	// Scoped per engagement.
	other, _ := g.IssueChallenge(ctx, "eng-2", OperationPurge)
	if ok, _ := g.Validate(ctx, "eng-1", OperationPurge, other.Token); ok {
		t.Error("Expected token of another engagement to be rejected")
	}
}

// TestGate_ConcurrentValidate tests that exactly one of many concurrent
// validations succeeds.
func TestGate_ConcurrentValidate(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestGate(t, NewMemoryStore())
	c, _ := g.IssueChallenge(ctx, "eng-1", OperationPurge)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := g.Validate(ctx, "eng-1", OperationPurge, c.Token); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("Expected exactly 1 successful validation, got %d", wins.Load())
	}
}

func TestGate_IssueRequiresScope(t *testing.T) {
	g, _ := newTestGate(t, NewMemoryStore())
	if _, err := g.IssueChallenge(context.Background(), "", OperationPurge); !governance.IsValidation(err) {
		t.Errorf("Expected ValidationError, got %v", err)
	}
}

func TestDedupKey(t *testing.T) {
	a := DedupKey("eng-1", governance.JobTypePurge, "documents", "assessments")
	b := DedupKey("eng-1", governance.JobTypePurge, "assessments", "documents", "assessments")
	if a != b {
		t.Error("Expected category order and duplicates to be ignored")
	}

	differs := []string{
		DedupKey("eng-2", governance.JobTypePurge, "documents", "assessments"),
		DedupKey("eng-1", governance.JobTypeExport, "documents", "assessments"),
		DedupKey("eng-1", governance.JobTypePurge, "documents"),
	}
	for i, k := range differs {
		if k == a {
			t.Errorf("Expected key %d to differ", i)
		}
	}
	if len(a) != 64 {
		t.Errorf("Expected hex sha256, got %q", a)
	}
}

// TestRedisStore runs the gate flows against a live Redis when
// STEWARD_TEST_REDIS_ADDR is set.
func TestRedisStore(t *testing.T) {
	addr := os.Getenv("STEWARD_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("STEWARD_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	store := NewRedisStore(redis.NewClient(&redis.Options{Addr: addr}), "steward-test:"+t.Name())
	defer store.Close()
	if err := store.Ping(ctx); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	g, _ := newTestGate(t, store)
	c, err := g.IssueChallenge(ctx, "eng-1", OperationPurge)
	if err != nil {
		t.Fatalf("IssueChallenge() failed: %v", err)
	}
	if ok, err := g.Validate(ctx, "eng-1", OperationPurge, c.Token); err != nil || !ok {
		t.Fatalf("Validate() = %v, %v", ok, err)
	}
	if ok, _ := g.Validate(ctx, "eng-1", OperationPurge, c.Token); ok {
		t.Error("Expected replay to be rejected")
	}
}
