package crypto

import (
	"crypto/hmac"
	"hash"

	"golang.org/x/crypto/sha3"
)

// NewMAC creates a new HMAC-SHA3-512 hash keyed with subkey, used to
// authenticate the Serpent-256-CBC ciphertext of a private key suite.
func NewMAC(subkey []byte) hash.Hash {
	return hmac.New(sha3.New512, subkey)
}

// MACSize is the output size of HMAC-SHA3-512, in bytes.
const MACSize = 64
