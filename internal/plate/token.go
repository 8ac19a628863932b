package plate

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

const (
	// Zero is left out so a printed plate never shows an ambiguous 0/O.
	digitAlphabet = "123456789"
	// I and O are left out for the same reason.
	letterAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ"
)

// Source is the randomness a Token draws from. *rand.Rand satisfies it.
type Source interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int {
	return rand.IntN(n)
}

// Token produces random runs of plate-safe digits and letters.
type Token struct {
	src Source
}

// NewToken returns a Token drawing from src, or from the process-wide
// generator when src is nil. A caller-supplied *rand.Rand is not safe for
// concurrent use, so neither is the Token built on it.
func NewToken(src Source) *Token {
	if src == nil {
		src = globalSource{}
	}
	return &Token{src: src}
}

// Digits returns count digits in 1-9.
func (t *Token) Digits(count int) (string, error) {
	return t.draw(digitAlphabet, count)
}

// Letters returns count letters from A-Z without I and O.
func (t *Token) Letters(count int) (string, error) {
	return t.draw(letterAlphabet, count)
}

func (t *Token) draw(alphabet string, count int) (string, error) {
	if count <= 0 {
		return "", fmt.Errorf("%w: token length must be positive, got %d", ErrInvalidArgument, count)
	}

	var sb strings.Builder
	sb.Grow(count)
	for i := 0; i < count; i++ {
		sb.WriteByte(alphabet[t.src.IntN(len(alphabet))])
	}
	return sb.String(), nil
}
