// ABOUTME: Shareable join code generation for linking accounts
// ABOUTME: Short codes from an ambiguity-free alphabet, collision-checked
package partner

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// codeAlphabet excludes visually ambiguous characters (0/O, 1/I/L) so codes
// survive being read aloud or copied by hand.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	codeLength      = 5
	maxCodeAttempts = 10
)

// NormalizeCode canonicalizes user-typed code input.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// GenerateUniqueCode produces a join code not currently claimed by any
// account, asking taken for each candidate. Collisions retry up to the
// attempt bound; exhaustion is a hard failure, since handing out a
// non-unique code would silently cross-link accounts.
func GenerateUniqueCode(ctx context.Context, taken func(ctx context.Context, code string) (bool, error)) (string, error) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := randomCode(rng)
		inUse, err := taken(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check join code: %w", err)
		}
		if !inUse {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate a unique join code after %d attempts", maxCodeAttempts)
}

func randomCode(rng *rand.Rand) string {
	b := make([]byte, codeLength)
	for i := range b {
		b[i] = codeAlphabet[rng.Intn(len(codeAlphabet))]
	}
	return string(b)
}
