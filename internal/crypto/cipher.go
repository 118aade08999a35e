package crypto

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/Picocrypt/serpent"
)

// SerpentBlockSize is the Serpent cipher's block size, in bytes.
const SerpentBlockSize = 16

// SerpentKeySize is the key size used for the key suite's AEAD envelope.
const SerpentKeySize = 32

// SuiteCipher implements the key suite's AEAD envelope: Serpent-256-CBC for
// confidentiality, HMAC-SHA3-512 over IV||ciphertext for integrity
// (encrypt-then-MAC).
type SuiteCipher struct {
	encKey []byte
	macKey []byte
}

// NewSuiteCipher builds a SuiteCipher from separate encryption and MAC
// subkeys (SplitSuiteKey produces them from a finalized password): encKey
// must be SerpentKeySize bytes and feeds Serpent, macKey must be non-empty
// and feeds HMAC-SHA3-512.
func NewSuiteCipher(encKey, macKey []byte) (*SuiteCipher, error) {
	if len(encKey) != SerpentKeySize {
		return nil, fmt.Errorf("suite cipher: encryption key must be %d bytes", SerpentKeySize)
	}
	if len(macKey) == 0 {
		return nil, errors.New("suite cipher: MAC key must not be empty")
	}
	return &SuiteCipher{encKey: encKey, macKey: macKey}, nil
}

// Seal encrypts plaintext and returns iv||ciphertext||tag, where tag is the
// HMAC-SHA3-512 of iv||ciphertext. plaintext is PKCS#7 padded to the
// Serpent block size before encryption.
func (sc *SuiteCipher) Seal(plaintext []byte) ([]byte, error) {
	block, err := serpent.NewCipher(sc.encKey)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, SerpentBlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("fatal crypto/rand error: %w", err)
	}

	padded := pkcs7Pad(plaintext, SerpentBlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	mac := NewMAC(sc.macKey)
	mac.Write(iv)
	mac.Write(ciphertext)
	tag := mac.Sum(nil)

	out := make([]byte, 0, len(iv)+len(ciphertext)+len(tag))
	out = append(out, iv...)
	out = append(out, ciphertext...)
	out = append(out, tag...)
	return out, nil
}

// Open verifies and decrypts a blob produced by Seal. It returns an error if
// the HMAC tag does not match, without revealing which byte differed.
func (sc *SuiteCipher) Open(blob []byte) ([]byte, error) {
	if len(blob) < SerpentBlockSize+MACSize {
		return nil, errors.New("suite cipher: blob too short")
	}

	ivEnd := SerpentBlockSize
	tagStart := len(blob) - MACSize
	iv := blob[:ivEnd]
	ciphertext := blob[ivEnd:tagStart]
	tag := blob[tagStart:]

	if len(ciphertext) == 0 || len(ciphertext)%SerpentBlockSize != 0 {
		return nil, errors.New("suite cipher: malformed ciphertext length")
	}

	mac := NewMAC(sc.macKey)
	mac.Write(iv)
	mac.Write(ciphertext)
	expected := mac.Sum(nil)
	if !hmac.Equal(expected, tag) {
		return nil, errors.New("suite cipher: integrity check failed")
	}

	block, err := serpent.NewCipher(sc.encKey)
	if err != nil {
		return nil, err
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	return pkcs7Unpad(padded, SerpentBlockSize)
}

// SplitSuiteKey splits a finalized password (Argon2KeySize bytes) into
// independent Serpent encryption and HMAC subkeys: the first SerpentKeySize
// bytes feed Serpent-CBC, the remainder feeds HMAC-SHA3-512. This is the key
// suite's only use of the finalized password; callers must zero finalized
// once both subkeys are derived.
func SplitSuiteKey(finalized []byte) (encKey, macKey []byte, err error) {
	if len(finalized) != Argon2KeySize {
		return nil, nil, fmt.Errorf("suite cipher: finalized key must be %d bytes", Argon2KeySize)
	}
	encKey = make([]byte, SerpentKeySize)
	copy(encKey, finalized[:SerpentKeySize])
	macKey = make([]byte, len(finalized)-SerpentKeySize)
	copy(macKey, finalized[SerpentKeySize:])
	return encKey, macKey, nil
}

// Close securely zeros the cipher's key material.
func (sc *SuiteCipher) Close() {
	if sc == nil {
		return
	}
	SecureZero(sc.encKey)
	SecureZero(sc.macKey)
	sc.encKey = nil
	sc.macKey = nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - (len(data) % blockSize)
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	n := len(data)
	if n == 0 || n%blockSize != 0 {
		return nil, errors.New("suite cipher: invalid padded length")
	}
	padLen := int(data[n-1])
	if padLen == 0 || padLen > blockSize || padLen > n {
		return nil, errors.New("suite cipher: invalid padding")
	}
	for _, b := range data[n-padLen:] {
		if int(b) != padLen {
			return nil, errors.New("suite cipher: invalid padding")
		}
	}
	return data[:n-padLen], nil
}
