// Package payment holds the chat-based payment detection heuristic and
// the scheduler that fires the delayed settlement transition.
package payment

import "strings"

// defaultPhrases are the trigger phrases scanned for in buyer messages.
// Matching is a lowercase substring test; this is a heuristic, not a
// verified payment confirmation, which is why settlement also requires
// the idempotent status guard downstream.
var defaultPhrases = []string{
	"vou pagar aqui irmão",
	"vou pagar agora",
	"pagamento feito",
	"já paguei",
	"pago",
	"transferência realizada",
	"pix enviado",
}

type Detector struct {
	phrases []string
}

func NewDetector() *Detector {
	return &Detector{phrases: defaultPhrases}
}

// Match reports whether message contains any trigger phrase.
func (d *Detector) Match(message string) bool {
	lower := strings.ToLower(message)
	for _, phrase := range d.phrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
