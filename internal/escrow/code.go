package escrow

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/PamellaBolsas/SafeTradeGames/internal/apperr"
	"github.com/PamellaBolsas/SafeTradeGames/internal/store"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const codeGenerationAttempts = 5

// generateCode produces a human-shareable join code of the form
// XXX-XXX-XXX over [A-Z0-9].
func generateCode() string {
	var b strings.Builder
	for group := 0; group < 3; group++ {
		if group > 0 {
			b.WriteByte('-')
		}
		for i := 0; i < 3; i++ {
			b.WriteByte(codeAlphabet[rand.IntN(len(codeAlphabet))])
		}
	}
	return b.String()
}

// newCode generates a join code that is not already in use, retrying a
// bounded number of times on collision.
func newCode(ctx context.Context, st store.Store) (string, error) {
	for i := 0; i < codeGenerationAttempts; i++ {
		code := generateCode()
		inUse, err := st.CodeInUse(ctx, code)
		if err != nil {
			return "", err
		}
		if !inUse {
			return code, nil
		}
	}
	return "", apperr.New(apperr.Internal, "Não foi possível gerar um código único")
}
