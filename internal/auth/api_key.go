// Package auth implements presenter API-key hashing and verification.
// Keys are configured as a stored hash, never in the clear: Argon2id
// PHC strings from `session-vigil hash-key`, or sha256:<hex> for
// environments that pre-hash keys elsewhere.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
)

// ErrUnknownHashType is returned when a stored hash has an unrecognized format.
var ErrUnknownHashType = errors.New("unknown hash type")

// Scheme names the hash algorithm behind a stored key hash.
type Scheme string

const (
	SchemeArgon2id Scheme = "argon2id"
	SchemeSHA256   Scheme = "sha256"
	SchemeUnknown  Scheme = "unknown"
)

// argon2idParams follows the OWASP minimum configuration for Argon2id:
// 47 MiB memory, 1 iteration, 1 lane.
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashKeyArgon2id returns an Argon2id hash of the raw key in PHC format,
// salted per call: $argon2id$v=19$m=47104,t=1,p=1$<salt>$<hash>
func HashKeyArgon2id(rawKey string) (string, error) {
	return argon2id.CreateHash(rawKey, argon2idParams)
}

// HashKeySHA256 returns the storable SHA-256 form of the raw key:
// sha256:<hex>. Weaker than Argon2id; kept for deployments that derive
// key hashes outside this binary.
func HashKeySHA256(rawKey string) string {
	return "sha256:" + sha256Hex(rawKey)
}

func sha256Hex(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(sum[:])
}

// SchemeOf identifies the algorithm a stored hash was produced with.
// Bare 64-character hex counts as SHA-256 for configs that drop the
// sha256: prefix.
func SchemeOf(storedHash string) Scheme {
	switch {
	case strings.HasPrefix(storedHash, "$argon2id$"):
		return SchemeArgon2id
	case strings.HasPrefix(storedHash, "sha256:"):
		return SchemeSHA256
	case looksLikeSHA256Hex(storedHash):
		return SchemeSHA256
	default:
		return SchemeUnknown
	}
}

func looksLikeSHA256Hex(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// VerifyKey verifies a raw key against a stored hash of any supported
// scheme. Returns (true, nil) on match, (false, nil) on mismatch, and
// (false, ErrUnknownHashType) when the stored hash is unrecognizable.
func VerifyKey(rawKey, storedHash string) (bool, error) {
	switch SchemeOf(storedHash) {
	case SchemeArgon2id:
		return verifyArgon2id(rawKey, storedHash)
	case SchemeSHA256:
		return verifySHA256(rawKey, storedHash), nil
	default:
		return false, ErrUnknownHashType
	}
}

func verifySHA256(rawKey, storedHash string) bool {
	expected := strings.TrimPrefix(storedHash, "sha256:")
	computed := sha256Hex(rawKey)
	// Constant-time comparison prevents timing attacks.
	return subtle.ConstantTimeCompare([]byte(computed), []byte(expected)) == 1
}

// verifyArgon2id wraps argon2id.ComparePasswordAndHash with panic
// recovery. The underlying argon2 library panics on malformed PHC
// strings with invalid parameters (t=0 rounds, p=0 parallelism); those
// become errors here so VerifyKey never panics on bad config.
func verifyArgon2id(rawKey, storedHash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(rawKey, storedHash)
}
