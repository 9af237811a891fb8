package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id cost parameters. Tuned for an interactive login on the small
// VM this service runs on; raising memory is the first knob to turn.
const (
	hashIterations  uint32 = 3
	hashMemoryKiB   uint32 = 64 * 1024
	hashParallelism uint8  = 1
	hashLenBytes    uint32 = 32
	saltLenBytes           = 16
)

// ErrMalformedHash reports a stored credential that is not a valid
// argon2id PHC string.
var ErrMalformedHash = errors.New("malformed password hash")

// HashPassword derives an Argon2id hash of the plaintext and encodes it
// as a PHC string ($argon2id$v=19$m=...,t=...,p=...$salt$hash). The salt
// is fresh per call, so hashing the same password twice yields different
// strings.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLenBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt,
		hashIterations, hashMemoryKiB, hashParallelism, hashLenBytes)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, hashMemoryKiB, hashIterations, hashParallelism,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// VerifyPassword re-derives the hash with the parameters recorded in the
// stored PHC string and compares in constant time. Cost parameters come
// from the stored string, not the current constants, so hashes written
// under older tunings keep verifying.
func VerifyPassword(password, encodedHash string) (bool, error) {
	stored, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), stored.salt,
		stored.iterations, stored.memoryKiB, stored.parallelism,
		uint32(len(stored.key))) //nolint:gosec // G115: key length fits uint32

	return subtle.ConstantTimeCompare(stored.key, candidate) == 1, nil
}

// phcHash holds the decoded fields of a stored credential.
type phcHash struct {
	iterations  uint32
	memoryKiB   uint32
	parallelism uint8
	salt        []byte
	key         []byte
}

// parsePHC splits and decodes an argon2id PHC string.
func parsePHC(encoded string) (phcHash, error) {
	var h phcHash

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return h, ErrMalformedHash
	}
	if parts[1] != "argon2id" {
		return h, fmt.Errorf("%w: algorithm %q", ErrMalformedHash, parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return h, fmt.Errorf("%w: version field", ErrMalformedHash)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d",
		&h.memoryKiB, &h.iterations, &h.parallelism); err != nil {
		return h, fmt.Errorf("%w: cost parameters", ErrMalformedHash)
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return h, fmt.Errorf("%w: salt", ErrMalformedHash)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return h, fmt.Errorf("%w: key", ErrMalformedHash)
	}

	return h, nil
}
