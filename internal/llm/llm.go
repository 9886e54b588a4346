package llm

import "context"

// Client defines the interface for the claim detection/verification provider.
type Client interface {
	// DetectClaim examines the newest transcript segment, given the recent
	// segments as context, and returns a single checkable factual claim or
	// "" when the segment contains none.
	DetectClaim(ctx context.Context, recentContext []string, segment string) (string, error)

	// VerifyClaim checks a claim against external knowledge and returns a
	// short spoken-style correction, or "" when the claim is judged true
	// or unverifiable.
	VerifyClaim(ctx context.Context, claim string) (string, error)
}
