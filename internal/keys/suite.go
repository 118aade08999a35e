package keys

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/cloudflare/circl/sign"

	wan24crypto "wan24setup/internal/crypto"
	"wan24setup/internal/errors"
	"wan24setup/internal/log"
	"wan24setup/internal/stream"
)

// FileMode is the permission bits used for every key-suite artifact written
// to disk: owner read/write only, since these files hold private keys.
const FileMode = 0o600

// maxSuiteFieldLen bounds length-prefixed fields decoded from a suite file.
const maxSuiteFieldLen = 1 << 20

// Suite is a private key suite: a primary ECDSA keypair, a counter-signature
// ML-DSA-65 keypair, and, once finalizeKey has merged it in, the vendor's
// signed public key vouching for the primary key.
type Suite struct {
	PrimaryPriv      *ecdsa.PrivateKey
	PrimaryPub       []byte // x509 PKIX-marshalled, cached alongside PrimaryPriv
	CounterPrivBytes []byte // circl-marshalled ML-DSA private key
	CounterPubBytes  []byte // circl-marshalled ML-DSA public key
	SignedPublic     *SignedPublicKey
}

// GenerateSuite creates a fresh suite with new primary and counter keys and
// no signed public key yet attached (that happens on finalizeKey).
func GenerateSuite() (*Suite, error) {
	primaryPriv, err := newPrimaryKeypair()
	if err != nil {
		return nil, err
	}
	primaryPub, err := x509.MarshalPKIXPublicKey(&primaryPriv.PublicKey)
	if err != nil {
		return nil, errors.NewCryptoError("marshal", err)
	}

	counterPub, counterPriv, err := newCounterKeypair()
	if err != nil {
		return nil, err
	}
	counterPubBytes, err := counterPub.MarshalBinary()
	if err != nil {
		return nil, errors.NewCryptoError("marshal", err)
	}
	counterPrivBytes, err := counterPriv.MarshalBinary()
	if err != nil {
		return nil, errors.NewCryptoError("marshal", err)
	}

	return &Suite{
		PrimaryPriv:      primaryPriv,
		PrimaryPub:       primaryPub,
		CounterPrivBytes: counterPrivBytes,
		CounterPubBytes:  counterPubBytes,
	}, nil
}

// CounterPrivateKey unmarshals the suite's ML-DSA private key.
func (s *Suite) CounterPrivateKey() (sign.PrivateKey, error) {
	scheme, err := counterScheme()
	if err != nil {
		return nil, err
	}
	priv, err := scheme.UnmarshalBinaryPrivateKey(s.CounterPrivBytes)
	if err != nil {
		return nil, errors.NewCryptoError("parse", err)
	}
	return priv, nil
}

// CounterPublicKey unmarshals the suite's ML-DSA public key.
func (s *Suite) CounterPublicKey() (sign.PublicKey, error) {
	scheme, err := counterScheme()
	if err != nil {
		return nil, err
	}
	pub, err := scheme.UnmarshalBinaryPublicKey(s.CounterPubBytes)
	if err != nil {
		return nil, errors.NewCryptoError("parse", err)
	}
	return pub, nil
}

// PrimaryKeyID and CounterKeyID identify the suite's two keys the same way
// KSR attributes and signatures do.
func (s *Suite) PrimaryKeyID() string { return KeyID(s.PrimaryPub) }
func (s *Suite) CounterKeyID() string { return KeyID(s.CounterPubBytes) }

// Encode serializes the suite to its framed-stream wire representation.
func (s *Suite) Encode() ([]byte, error) {
	privBytes, err := x509.MarshalECPrivateKey(s.PrimaryPriv)
	if err != nil {
		return nil, errors.NewCryptoError("marshal", err)
	}

	var buf bytes.Buffer
	w := stream.NewWriter(&buf)
	if err := w.WriteVersionTag(); err != nil {
		return nil, err
	}
	if err := w.WriteLenBytes(privBytes); err != nil {
		return nil, err
	}
	if err := w.WriteLenBytes(s.PrimaryPub); err != nil {
		return nil, err
	}
	if err := w.WriteLenBytes(s.CounterPrivBytes); err != nil {
		return nil, err
	}
	if err := w.WriteLenBytes(s.CounterPubBytes); err != nil {
		return nil, err
	}

	if s.SignedPublic == nil {
		if err := w.WriteBool(false); err != nil {
			return nil, err
		}
	} else {
		if err := w.WriteBool(true); err != nil {
			return nil, err
		}
		if err := s.SignedPublic.Serialize(w); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// DecodeSuite parses a suite's framed-stream wire representation.
func DecodeSuite(data []byte) (*Suite, error) {
	r := stream.NewReader(bytes.NewReader(data))
	if _, err := r.ReadVersionTag(); err != nil {
		return nil, err
	}

	privBytes, err := r.ReadLenBytes(maxSuiteFieldLen)
	if err != nil {
		return nil, err
	}
	primaryPriv, err := x509.ParseECPrivateKey(privBytes)
	if err != nil {
		return nil, errors.NewCryptoError("parse", err)
	}

	primaryPub, err := r.ReadLenBytes(maxSuiteFieldLen)
	if err != nil {
		return nil, err
	}
	counterPriv, err := r.ReadLenBytes(maxSuiteFieldLen)
	if err != nil {
		return nil, err
	}
	counterPub, err := r.ReadLenBytes(maxSuiteFieldLen)
	if err != nil {
		return nil, err
	}

	hasSigned, err := r.ReadBool()
	if err != nil {
		return nil, err
	}
	var signedPublic *SignedPublicKey
	if hasSigned {
		signedPublic, err = DeserializeSignedPublicKey(r)
		if err != nil {
			return nil, err
		}
	}

	return &Suite{
		PrimaryPriv:      primaryPriv,
		PrimaryPub:       primaryPub,
		CounterPrivBytes: counterPriv,
		CounterPubBytes:  counterPub,
		SignedPublic:     signedPublic,
	}, nil
}

// FinalizeSuite merges a vendor-issued signed public key into suite,
// completing the create-key/sign-key/finalize lifecycle: signed must vouch
// for this exact suite's primary key, and must carry both the primary and
// counter vendor signatures SignKSR produces. It does not check that the
// vendor who issued signed is itself trusted — that is a verifier's job
// (TrustStore.ValidateChain), run later at package-verification time
// against whoever is checking the package, not at merge time.
func FinalizeSuite(suite *Suite, signed *SignedPublicKey) error {
	if !bytes.Equal(signed.PublicKey, suite.PrimaryPub) {
		return errors.NewValidationError("signed_public_key", "does not vouch for this suite's primary key")
	}
	if !bytes.Equal(signed.CounterPublicKey, suite.CounterPubBytes) {
		return errors.NewValidationError("signed_public_key", "does not vouch for this suite's counter key")
	}
	if _, _, err := splitSignatures(signed.Signatures); err != nil {
		return err
	}
	suite.SignedPublic = signed
	return nil
}

// SaveEncrypted AEAD-encrypts the suite under finalizedPassword (the output
// of the password pipeline's Finalize) and writes it to path. The caller
// owns finalizedPassword and is responsible for zeroing it afterward.
func SaveEncrypted(path string, s *Suite, finalizedPassword []byte) error {
	plaintext, err := s.Encode()
	if err != nil {
		return err
	}

	encKey, macKey, err := wan24crypto.SplitSuiteKey(finalizedPassword)
	if err != nil {
		return err
	}
	cipher, err := wan24crypto.NewSuiteCipher(encKey, macKey)
	if err != nil {
		return err
	}
	defer cipher.Close()

	sealed, err := cipher.Seal(plaintext)
	if err != nil {
		return errors.NewCryptoError("aead", err)
	}

	if err := os.WriteFile(path, sealed, FileMode); err != nil {
		return errors.NewFileError("write", path, err)
	}
	log.Info("wrote key suite", log.String("path", path))
	return nil
}

// LoadEncrypted reads and decrypts a suite previously written by
// SaveEncrypted. A wrong password or tampered file both surface as
// ErrIntegrityFailure, since the AEAD tag cannot distinguish the two.
func LoadEncrypted(path string, finalizedPassword []byte) (*Suite, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewFileError("read", path, err)
	}

	encKey, macKey, err := wan24crypto.SplitSuiteKey(finalizedPassword)
	if err != nil {
		return nil, err
	}
	cipher, err := wan24crypto.NewSuiteCipher(encKey, macKey)
	if err != nil {
		return nil, err
	}
	defer cipher.Close()

	plaintext, err := cipher.Open(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrIntegrityFailure, err)
	}

	return DecodeSuite(plaintext)
}
