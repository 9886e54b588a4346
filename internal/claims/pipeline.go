// Package claims implements the two-stage claim detection/verification
// pipeline with per-claim deduplication and cooldown.
package claims

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/sotto-ai/sotto/internal/llm"
)

// DefaultCooldown is how long a resolved claim is suppressed before the
// same exact text can be verified again.
const DefaultCooldown = 5 * time.Minute

// Pipeline runs claim detection and verification against an llm.Client.
// One Pipeline is created per process and shared by all call sessions, so
// identical claims arising on concurrent calls are deduplicated against
// each other. Safe for concurrent use.
type Pipeline struct {
	llm      llm.Client
	logger   *log.Logger
	cooldown time.Duration

	mu       sync.Mutex
	pending  map[string]struct{}  // claims with an in-flight verification
	resolved map[string]time.Time // claim -> cooldown expiry

	now func() time.Time
}

// NewPipeline creates a Pipeline with the default cooldown window.
func NewPipeline(client llm.Client, logger *log.Logger) *Pipeline {
	return &Pipeline{
		llm:      client,
		logger:   logger,
		cooldown: DefaultCooldown,
		pending:  make(map[string]struct{}),
		resolved: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Detect asks the provider whether segment contains a checkable factual
// claim, given the recent transcript lines as context. Detection never
// surfaces errors: any failure degrades to "no claim".
func (p *Pipeline) Detect(ctx context.Context, recentContext []string, segment string) string {
	claim, err := p.llm.DetectClaim(ctx, recentContext, segment)
	if err != nil {
		p.logger.Printf("claims: detection failed: %v", err)
		return ""
	}
	return claim
}

// Verify checks claim against external knowledge and returns a short
// correction, or "" when the claim is true, unverifiable, already being
// verified, or still cooling down.
//
// Concurrent calls with the same claim text make exactly one external call:
// later callers return "" immediately rather than waiting for the first.
func (p *Pipeline) Verify(ctx context.Context, claim string) string {
	if claim == "" || !p.begin(claim) {
		return ""
	}

	resolved := false
	defer func() {
		// Cleanup runs on every exit path, including panic, so a failed
		// verification never leaves the claim stuck in the pending set.
		p.finish(claim, resolved)
	}()

	correction, err := p.llm.VerifyClaim(ctx, claim)
	if err != nil {
		p.logger.Printf("claims: verification failed for %q: %v", claim, err)
		return ""
	}

	resolved = true
	return correction
}

// begin atomically checks the pending set and cooldown registry and inserts
// claim into the pending set. Returns false when the claim is already being
// verified or was resolved within the cooldown window.
func (p *Pipeline) begin(claim string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()

	// Lazy sweep of expired cooldowns.
	for c, expiry := range p.resolved {
		if now.After(expiry) {
			delete(p.resolved, c)
		}
	}

	if _, ok := p.pending[claim]; ok {
		return false
	}
	if expiry, ok := p.resolved[claim]; ok && now.Before(expiry) {
		return false
	}

	p.pending[claim] = struct{}{}
	return true
}

// finish removes claim from the pending set. Resolved claims (verified as
// true or false) additionally enter the cooldown registry; failed
// verifications do not, so a later attempt gets a fresh call.
func (p *Pipeline) finish(claim string, resolved bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.pending, claim)
	if resolved {
		p.resolved[claim] = p.now().Add(p.cooldown)
	}
}
