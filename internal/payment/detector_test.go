package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectorMatch(t *testing.T) {
	d := NewDetector()

	cases := []struct {
		message string
		want    bool
	}{
		{"já paguei", true},
		{"JÁ PAGUEI", true},
		{"vou pagar agora mesmo", true},
		{"pronto, pagamento feito!", true},
		{"pix enviado, confere aí", true},
		{"transferência realizada com sucesso", true},
		{"vou pagar aqui irmão", true},
		{"pago", true},
		{"qual o valor?", false},
		{"ainda vou pensar", false},
		{"", false},
		{"quando você envia o item?", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, d.Match(tc.message), "message %q", tc.message)
	}
}
