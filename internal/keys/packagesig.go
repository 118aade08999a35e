package keys

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/sha3"

	"wan24setup/internal/errors"
	"wan24setup/internal/log"
	"wan24setup/internal/stream"
)

// PackageSignature is the detached `<package>.sig` artifact: a primary
// ECDSA signature and a counter ML-DSA signature over the full package byte
// stream, plus the signer's signed public key so a verifier needs nothing
// but the PKI trust store to validate it.
type PackageSignature struct {
	SignerKey  *SignedPublicKey
	PrimarySig Signature
	CounterSig Signature
}

// SignPackage signs packageBytes with suite's primary and counter keys.
// suite must already carry its finalized SignedPublicKey (i.e. finalizeKey
// must have run) or the resulting signature container has no chain for a
// verifier to check.
func SignPackage(suite *Suite, packageBytes []byte) (*PackageSignature, error) {
	if suite.SignedPublic == nil {
		return nil, errors.NewValidationError("suite", "key suite has no signed public key; run finalizeKey first")
	}

	digest := sha3.Sum512(packageBytes)

	primarySig, err := ecdsa.SignASN1(rand.Reader, suite.PrimaryPriv, digest[:])
	if err != nil {
		return nil, errors.NewCryptoError("sign", err)
	}

	counterPriv, err := suite.CounterPrivateKey()
	if err != nil {
		return nil, err
	}
	scheme, err := counterScheme()
	if err != nil {
		return nil, err
	}
	counterSig := scheme.Sign(counterPriv, digest[:], nil)
	if counterSig == nil {
		return nil, errors.NewCryptoError("sign", fmt.Errorf("counter-signature scheme refused to sign"))
	}

	ts := time.Now()
	return &PackageSignature{
		SignerKey: suite.SignedPublic,
		PrimarySig: Signature{
			SignerID:  suite.PrimaryKeyID(),
			Timestamp: ts,
			HashAlg:   "SHA3-512",
			Purpose:   PurposePackageSignature,
			Bytes:     primarySig,
		},
		CounterSig: Signature{
			SignerID:  suite.CounterKeyID(),
			Timestamp: ts,
			HashAlg:   "SHA3-512",
			Purpose:   PurposePackageSignature,
			Bytes:     counterSig,
		},
	}, nil
}

// Verify checks that both signatures in ps cover packageBytes under the
// keys named by ps.SignerKey, which is itself checked against trustStore
// with the required PKI domain. Both the primary and counter signatures
// must verify; either failing fails the whole package (§ validation policy:
// the counter signature defends against future compromise of the classical
// primitive alone).
func (ps *PackageSignature) Verify(packageBytes []byte, trustStore *TrustStore) error {
	if ps.PrimarySig.Purpose != PurposePackageSignature || ps.CounterSig.Purpose != PurposePackageSignature {
		return errors.ErrUntrustedPackage
	}

	if err := trustStore.ValidateChain(ps.SignerKey, PKIDomain); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrUntrustedPackage, err)
	}

	signerPub, err := ps.SignerKey.ParsePrimaryPublicKey()
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrUntrustedPackage, err)
	}

	digest := sha3.Sum512(packageBytes)

	if !ecdsa.VerifyASN1(signerPub, digest[:], ps.PrimarySig.Bytes) {
		return errors.ErrUntrustedPackage
	}

	scheme, err := counterScheme()
	if err != nil {
		return err
	}
	counterPub, err := scheme.UnmarshalBinaryPublicKey(ps.SignerKey.CounterPublicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrUntrustedPackage, err)
	}
	if !scheme.Verify(counterPub, digest[:], ps.CounterSig.Bytes, nil) {
		return errors.ErrUntrustedPackage
	}

	return nil
}

// Encode serializes the package signature to its framed-stream wire
// representation.
func (ps *PackageSignature) Encode() ([]byte, error) {
	var buf bytes.Buffer
	w := stream.NewWriter(&buf)
	if err := w.WriteVersionTag(); err != nil {
		return nil, err
	}
	if err := ps.SignerKey.Serialize(w); err != nil {
		return nil, err
	}
	if err := writeSignature(w, ps.PrimarySig); err != nil {
		return nil, err
	}
	if err := writeSignature(w, ps.CounterSig); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodePackageSignature parses a package signature's framed-stream wire
// representation.
func DecodePackageSignature(data []byte) (*PackageSignature, error) {
	r := stream.NewReader(bytes.NewReader(data))
	if _, err := r.ReadVersionTag(); err != nil {
		return nil, err
	}
	signerKey, err := DeserializeSignedPublicKey(r)
	if err != nil {
		return nil, err
	}
	primarySig, err := readSignature(r)
	if err != nil {
		return nil, err
	}
	counterSig, err := readSignature(r)
	if err != nil {
		return nil, err
	}
	return &PackageSignature{SignerKey: signerKey, PrimarySig: primarySig, CounterSig: counterSig}, nil
}

// SavePackageSignature writes ps to path (conventionally <package>.sig).
func SavePackageSignature(path string, ps *PackageSignature) error {
	data, err := ps.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, FileMode); err != nil {
		return errors.NewFileError("write", path, err)
	}
	log.Info("wrote package signature", log.String("path", path))
	return nil
}

// LoadPackageSignature reads and decodes a package signature from path.
func LoadPackageSignature(path string) (*PackageSignature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewFileError("read", path, err)
	}
	return DecodePackageSignature(data)
}
