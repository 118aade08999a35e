// Package crypto provides the cryptographic primitives behind wan24setup's
// key suite encryption and password pipeline. This is AUDIT-CRITICAL code -
// changes here directly affect whether existing key suites can be opened.
package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/sha3"
)

// RandomBytes generates n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("fatal crypto/rand error: %w", err)
	}

	allZero := true
	for _, v := range b {
		if v != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return nil, errors.New("fatal crypto/rand error: produced zero bytes")
	}

	return b, nil
}

// Two-stage KDF parameters. The password pipeline first stretches with
// PBKDF2-SHA3-384, then feeds the result through Argon2id.
//
// CRITICAL: these parameters MUST NOT change or existing key suites cannot
// be opened.
const (
	PBKDF2Iterations = 250_000
	PBKDF2KeySize    = 48 // SHA3-384 output size

	Argon2Time      = 1
	Argon2MemoryKiB = 47104 // 46 MiB
	Argon2Threads   = 1
	Argon2KeySize   = 64
)

// DeterministicSalt derives a per-password salt as HMAC-SHA3-512(password,
// password), so repeated unlock attempts against the same key suite derive
// the same Argon2 salt without storing one alongside the suite.
func DeterministicSalt(password []byte) []byte {
	mac := hmac.New(sha3.New512, password)
	mac.Write(password)
	return mac.Sum(nil)
}

// StretchPassword runs the first KDF stage: PBKDF2-SHA3-384 with
// PBKDF2Iterations iterations, producing a PBKDF2KeySize-byte intermediate
// key from the raw password and its deterministic salt.
func StretchPassword(password, salt []byte) []byte {
	return pbkdf2.Key(password, salt, PBKDF2Iterations, PBKDF2KeySize, sha3.New384)
}

// Argon2idFromStretched runs the second KDF stage: Argon2id over an
// already PBKDF2-stretched password, producing the Argon2KeySize-byte
// finalized password used as the key suite's AEAD key.
//
// CRITICAL: parameters (time=1, memory=47104KiB, threads=1, output=64B) MUST
// NOT change or existing key suites cannot be opened.
func Argon2idFromStretched(stretched, salt []byte) []byte {
	return argon2.IDKey(stretched, salt, Argon2Time, Argon2MemoryKiB, Argon2Threads, Argon2KeySize)
}

// DeriveSuiteKey runs both KDF stages in series over a raw password,
// producing the Argon2KeySize-byte key used to open a private key suite's
// AEAD envelope, along with the deterministic salt used.
func DeriveSuiteKey(password []byte) ([]byte, []byte, error) {
	salt := DeterministicSalt(password)
	stretched := StretchPassword(password, salt)
	defer SecureZero(stretched)

	key := Argon2idFromStretched(stretched, salt)

	zero := make([]byte, Argon2KeySize)
	if hmac.Equal(key, zero) {
		return nil, nil, errors.New("fatal crypto/argon2 error: produced zero key")
	}

	return key, salt, nil
}
