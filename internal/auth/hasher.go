// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tourbook Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Argon2Params is the argon2id cost configuration.
type Argon2Params struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
	SaltLen   uint32
	KeyLen    uint32
}

// DefaultArgon2Params follow the OWASP argon2id recommendation; one hash takes
// tens of milliseconds on commodity hardware.
var DefaultArgon2Params = Argon2Params{
	Time:      1,
	MemoryKiB: 64 * 1024,
	Threads:   4,
	SaltLen:   16,
	KeyLen:    32,
}

// Upper bounds on digest costs. Verify rejects digests above them.
const (
	MaxArgon2MemoryKiB = 1 << 20 // 1 GiB
	MaxArgon2Time      = 16
	MaxArgon2SaltLen   = 64
	MaxArgon2KeyLen    = 128
	MaxBcryptCost      = 16
)

func (p Argon2Params) withinLimits() bool {
	return p.Time > 0 && p.Time <= MaxArgon2Time &&
		p.MemoryKiB > 0 && p.MemoryKiB <= MaxArgon2MemoryKiB &&
		p.Threads > 0 &&
		p.SaltLen > 0 && p.SaltLen <= MaxArgon2SaltLen &&
		p.KeyLen > 0 && p.KeyLen <= MaxArgon2KeyLen
}

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted one-way digest of the password.
	Hash(password string) (string, error)

	// Verify reports whether password matches digest. Malformed digests
	// never match.
	Verify(password, digest string) bool

	// NeedsUpgrade returns true if digest should be rehashed with Hash.
	NeedsUpgrade(digest string) bool
}

// Argon2idHasher implements PasswordHasher using argon2id. It also verifies
// legacy bcrypt digests so imported accounts can still sign in.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates an Argon2idHasher with the given cost parameters.
func NewArgon2idHasher(params Argon2Params) (*Argon2idHasher, error) {
	if params.Time == 0 || params.MemoryKiB == 0 || params.Threads == 0 {
		return nil, oops.Code("AUTH_HASHER_CONFIG").
			With("time", params.Time).
			With("memory_kib", params.MemoryKiB).
			With("threads", params.Threads).
			Errorf("argon2 time, memory and threads must be positive")
	}
	if params.SaltLen == 0 {
		params.SaltLen = DefaultArgon2Params.SaltLen
	}
	if params.KeyLen == 0 {
		params.KeyLen = DefaultArgon2Params.KeyLen
	}
	if !params.withinLimits() {
		return nil, oops.Code("AUTH_HASHER_CONFIG").
			With("time", params.Time).
			With("memory_kib", params.MemoryKiB).
			With("salt_len", params.SaltLen).
			With("key_len", params.KeyLen).
			Errorf("argon2 parameters exceed supported limits")
	}
	return &Argon2idHasher{params: params}, nil
}

// Hash produces an argon2id hash in PHC string format:
// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.MemoryKiB, h.params.Threads, h.params.KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.MemoryKiB,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks if the password matches the digest. Digests whose cost
// exceeds the Max* limits never match.
func (h *Argon2idHasher) Verify(password, digest string) bool {
	if isBcrypt(digest) {
		if cost, err := bcrypt.Cost([]byte(digest)); err != nil || cost > MaxBcryptCost {
			return false
		}
		return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
	}

	d, ok := parseArgon2Digest(digest)
	if !ok {
		return false
	}
	computed := argon2.IDKey([]byte(password), d.salt, d.params.Time, d.params.MemoryKiB, d.params.Threads, d.params.KeyLen)
	return subtle.ConstantTimeCompare(computed, d.key) == 1
}

type argon2Digest struct {
	params Argon2Params
	salt   []byte
	key    []byte
}

// parseArgon2Digest decodes a PHC argon2id string and rejects costs outside
// the supported bounds.
func parseArgon2Digest(digest string) (argon2Digest, bool) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return argon2Digest{}, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return argon2Digest{}, false
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return argon2Digest{}, false
	}
	if threads == 0 || threads > 255 {
		return argon2Digest{}, false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return argon2Digest{}, false
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return argon2Digest{}, false
	}

	p := Argon2Params{
		Time:      iterations,
		MemoryKiB: memory,
		Threads:   uint8(threads),
		SaltLen:   uint32(len(salt)),
		KeyLen:    uint32(len(key)),
	}
	if !p.withinLimits() {
		return argon2Digest{}, false
	}
	return argon2Digest{params: p, salt: salt, key: key}, true
}

// NeedsUpgrade returns true for bcrypt digests and for argon2id digests
// produced with different cost parameters.
func (h *Argon2idHasher) NeedsUpgrade(digest string) bool {
	if !strings.HasPrefix(digest, "$argon2id$") {
		return true
	}
	want := fmt.Sprintf("$m=%d,t=%d,p=%d$", h.params.MemoryKiB, h.params.Time, h.params.Threads)
	return !strings.Contains(digest, want)
}

func isBcrypt(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}

// IsSupportedDigest reports whether digest is one Verify would evaluate: a
// well-formed argon2id or bcrypt digest within the cost limits.
func IsSupportedDigest(digest string) bool {
	if isBcrypt(digest) {
		cost, err := bcrypt.Cost([]byte(digest))
		return err == nil && cost <= MaxBcryptCost
	}
	_, ok := parseArgon2Digest(digest)
	return ok
}
