package shortcode

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
)

// Alphabet is the 62-symbol set codes are drawn from.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultLength gives a key space of 62^6 (about 5.68e10) codes.
const DefaultLength = 6

// Bytes at or above this value are rejected so every symbol stays equally likely.
const maxUnbiased = 256 - 256%len(Alphabet)

// Generator defines the interface for generating short codes.
type Generator interface {
	Generate(ctx context.Context) (string, error)
}

// RandomGenerator draws each symbol independently and uniformly, so a code
// carries no information about the URL it is assigned to.
type RandomGenerator struct {
	length int
	source io.Reader
}

// NewRandomGenerator returns a generator backed by crypto/rand. A length
// below one falls back to DefaultLength.
func NewRandomGenerator(length int) *RandomGenerator {
	return NewRandomGeneratorFrom(rand.Reader, length)
}

// NewRandomGeneratorFrom is NewRandomGenerator with an explicit entropy source.
func NewRandomGeneratorFrom(source io.Reader, length int) *RandomGenerator {
	if length < 1 {
		length = DefaultLength
	}
	return &RandomGenerator{length: length, source: source}
}

func (g *RandomGenerator) Generate(ctx context.Context) (string, error) {
	code := make([]byte, 0, g.length)
	buf := make([]byte, g.length*2)

	for len(code) < g.length {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if _, err := io.ReadFull(g.source, buf); err != nil {
			return "", fmt.Errorf("shortcode: read entropy: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}
			code = append(code, Alphabet[int(b)%len(Alphabet)])
			if len(code) == g.length {
				break
			}
		}
	}

	return string(code), nil
}

// Valid reports whether s has the given length and only alphabet symbols.
func Valid(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}
