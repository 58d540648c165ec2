package password

import (
	"fmt"
	"strings"
)

// Algorithm names the scheme used for new digests.
type Algorithm string

const (
	AlgorithmBcrypt   Algorithm = "bcrypt"
	AlgorithmArgon2id Algorithm = "argon2id"
)

// Config selects the algorithm and its parameters.
type Config struct {
	Algorithm  Algorithm
	BcryptCost int
	Argon2     Argon2Config
}

// DefaultConfig returns bcrypt at cost 10.
func DefaultConfig() Config {
	return Config{
		Algorithm:  AlgorithmBcrypt,
		BcryptCost: DefaultBcryptCost,
		Argon2:     DefaultArgon2Config(),
	}
}

// Hasher hashes with the configured algorithm and verifies digests of
// either supported algorithm, so a deployment can switch schemes without
// invalidating stored credentials.
type Hasher struct {
	algorithm Algorithm
	bcrypt    *Bcrypt
	argon2    *Argon2
}

// New validates cfg and builds a Hasher.
func New(cfg Config) (*Hasher, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmBcrypt
	}
	if cfg.Algorithm != AlgorithmBcrypt && cfg.Algorithm != AlgorithmArgon2id {
		return nil, fmt.Errorf("password: unsupported algorithm %q", cfg.Algorithm)
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = DefaultBcryptCost
	}

	b, err := NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	h := &Hasher{algorithm: cfg.Algorithm, bcrypt: b}
	if cfg.Algorithm == AlgorithmArgon2id {
		if h.argon2, err = NewArgon2(cfg.Argon2); err != nil {
			return nil, err
		}
	} else if h.argon2, err = NewArgon2(DefaultArgon2Config()); err != nil {
		return nil, err
	}
	return h, nil
}

// Algorithm reports the scheme used by Hash.
func (h *Hasher) Algorithm() Algorithm { return h.algorithm }

// Hash returns a self-describing, salted digest of plaintext. Two calls
// with the same input return different digests.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if h.algorithm == AlgorithmArgon2id {
		return h.argon2.Hash(plaintext)
	}
	return h.bcrypt.Hash(plaintext)
}

// Verify reports whether plaintext matches digest. It never fails: an
// unknown or malformed digest is simply a mismatch.
func (h *Hasher) Verify(plaintext, digest string) bool {
	switch {
	case isBcryptDigest(digest):
		return h.bcrypt.Verify(plaintext, digest)
	case strings.HasPrefix(digest, argon2Prefix):
		return h.argon2.Verify(plaintext, digest)
	default:
		return false
	}
}

// NeedsUpgrade reports whether digest should be replaced on the next
// successful verification.
func (h *Hasher) NeedsUpgrade(digest string) bool {
	switch {
	case isBcryptDigest(digest):
		return h.algorithm != AlgorithmBcrypt || h.bcrypt.NeedsUpgrade(digest)
	case strings.HasPrefix(digest, argon2Prefix):
		return h.algorithm != AlgorithmArgon2id || h.argon2.NeedsUpgrade(digest)
	default:
		return true
	}
}
