// Package token derives one-time token identifiers and contents and
// models the entries held in a store.
//
// Derivation is deterministic given a seed: the content digest is
// sha256("seed|depth|payer") re-hashed depth more times, and the id is a
// prefix of sha256("seed_payer"). Seeds carry the randomness.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// SeedBytes is the entropy drawn for every seed.
const SeedBytes = 32

var ErrInvalidDeriver = errors.New("token: invalid deriver")

// ContentGenerator produces token content for a seed, depth and payer.
type ContentGenerator func(seed string, depth int, payer string) string

// NewSeed returns a URL-safe random seed read from r. A nil r uses
// crypto/rand.
func NewSeed(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	buf := make([]byte, SeedBytes)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("token: read seed: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Deriver holds the formatting parameters of derived ids and contents.
type Deriver struct {
	IDLength     int
	DigestLength int
	PayerPrefix  int
	Marker       string
}

// DefaultDeriver yields 16-hex ids and contents of the form
// TKN_<payer[:8]>_<32 hex>.
func DefaultDeriver() Deriver {
	return Deriver{
		IDLength:     16,
		DigestLength: 32,
		PayerPrefix:  8,
		Marker:       "TKN",
	}
}

func (d Deriver) Validate() error {
	switch {
	case d.IDLength < 8 || d.IDLength > sha256.Size*2:
		return fmt.Errorf("%w: id length %d outside [8, %d]", ErrInvalidDeriver, d.IDLength, sha256.Size*2)
	case d.DigestLength < 1 || d.DigestLength > sha256.Size*2:
		return fmt.Errorf("%w: digest length %d outside [1, %d]", ErrInvalidDeriver, d.DigestLength, sha256.Size*2)
	case d.PayerPrefix < 0:
		return fmt.Errorf("%w: negative payer prefix", ErrInvalidDeriver)
	case d.Marker == "":
		return fmt.Errorf("%w: empty marker", ErrInvalidDeriver)
	}
	return nil
}

// DeriveID returns the token id for a seed and payer.
func (d Deriver) DeriveID(seed, payer string) string {
	sum := sha256.Sum256([]byte(seed + "_" + payer))
	return hex.EncodeToString(sum[:])[:d.IDLength]
}

// DeriveContent returns the token content for a seed, depth and payer.
func (d Deriver) DeriveContent(seed string, depth int, payer string) string {
	sum := sha256.Sum256([]byte(seed + "|" + strconv.Itoa(depth) + "|" + payer))
	for i := 0; i < depth; i++ {
		sum = sha256.Sum256(sum[:])
	}
	digest := hex.EncodeToString(sum[:])[:d.DigestLength]
	return d.Marker + "_" + truncate(payer, d.PayerPrefix) + "_" + digest
}

// Generator adapts DeriveContent to a ContentGenerator.
func (d Deriver) Generator() ContentGenerator {
	return d.DeriveContent
}

// truncate cuts s to at most n bytes, backing off to a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
