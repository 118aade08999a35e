package keys

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"fmt"
	"sort"
	"time"

	"wan24setup/internal/errors"
	"wan24setup/internal/stream"
)

// maxSignedKeyFieldLen bounds length-prefixed fields decoded from a signed
// public key.
const maxSignedKeyFieldLen = 1 << 20

// SignedPublicKey is a public key pair vouched for by one or more
// higher-tier keys. A signed public key issued by SignKSR always carries
// exactly two signatures: the vendor's primary ECDSA signature and the
// vendor's counter ML-DSA-65 signature, both over the same digest. It
// carries both halves of the requester's keypair (primary and counter)
// because both are needed later to verify a package this requester signs.
type SignedPublicKey struct {
	PublicKey        []byte // x509 PKIX-marshalled ECDSA public key being vouched for
	CounterPublicKey []byte // circl-marshalled ML-DSA public key being vouched for
	Attributes       map[string]string
	Signatures       []Signature
}

// SignKSR validates requester's self-signature, then issues a signed public
// key vouching for requester's primary public key: one signature from
// vendor's primary ECDSA key, one counter-signature from vendor's ML-DSA
// key, both carrying purpose PurposeSignedPublicKey.
func SignKSR(vendor *Suite, requester *KSR) (*SignedPublicKey, error) {
	if err := requester.VerifySelfSignature(); err != nil {
		return nil, err
	}

	digest := signedKeyDigest(requester.PrimaryPublicKey, requester.CounterPublicKey, requester.Attributes)

	primarySig, err := ecdsa.SignASN1(rand.Reader, vendor.PrimaryPriv, digest[:])
	if err != nil {
		return nil, errors.NewCryptoError("sign", err)
	}

	counterPriv, err := vendor.CounterPrivateKey()
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
	return &SignedPublicKey{
		PublicKey:        requester.PrimaryPublicKey,
		CounterPublicKey: requester.CounterPublicKey,
		Attributes:       requester.Attributes,
		Signatures: []Signature{
			{
				SignerID:  vendor.PrimaryKeyID(),
				Timestamp: ts,
				HashAlg:   "SHA3-512",
				Purpose:   PurposeSignedPublicKey,
				Bytes:     primarySig,
			},
			{
				SignerID:  vendor.CounterKeyID(),
				Timestamp: ts,
				HashAlg:   "SHA3-512",
				Purpose:   PurposeSignedPublicKey,
				Bytes:     counterSig,
			},
		},
	}, nil
}

// signedKeyDigest computes the digest a signed public key's signatures
// attest to: the vouched-for primary and counter public keys plus the
// attribute map, under PurposeSignedPublicKey.
func signedKeyDigest(primaryPub, counterPub []byte, attrs map[string]string) [64]byte {
	return attributeDigest([][]byte{primaryPub, counterPub}, attrs, PurposeSignedPublicKey)
}

// VerifyAgainst checks both of spk's signatures against the named vendor
// public keys (as they'd be found in a PKI trust store entry). It does not
// consult the trust store itself; TrustStore.ValidateChain wraps this with
// the "signer is actually trusted" check.
func (spk *SignedPublicKey) VerifyAgainst(vendorPrimaryPub *ecdsa.PublicKey, vendorCounterPubBytes []byte) error {
	primary, counter, err := splitSignatures(spk.Signatures)
	if err != nil {
		return err
	}
	if primary.Purpose != PurposeSignedPublicKey || counter.Purpose != PurposeSignedPublicKey {
		return errors.ErrIntegrityFailure
	}

	digest := signedKeyDigest(spk.PublicKey, spk.CounterPublicKey, spk.Attributes)

	if !ecdsa.VerifyASN1(vendorPrimaryPub, digest[:], primary.Bytes) {
		return errors.ErrIntegrityFailure
	}

	scheme, err := counterScheme()
	if err != nil {
		return err
	}
	counterPubKey, err := scheme.UnmarshalBinaryPublicKey(vendorCounterPubBytes)
	if err != nil {
		return errors.NewCryptoError("parse", err)
	}
	if !scheme.Verify(counterPubKey, digest[:], counter.Bytes, nil) {
		return errors.ErrIntegrityFailure
	}

	return nil
}

func splitSignatures(sigs []Signature) (primary, counter Signature, err error) {
	if len(sigs) != 2 {
		return Signature{}, Signature{}, errors.NewValidationError("signatures", "a signed public key must carry exactly a primary and counter signature")
	}
	return sigs[0], sigs[1], nil
}

// Serialize writes the signed public key's framed-stream wire
// representation.
func (spk *SignedPublicKey) Serialize(w *stream.Writer) error {
	if err := w.WriteLenBytes(spk.PublicKey); err != nil {
		return err
	}
	if err := w.WriteLenBytes(spk.CounterPublicKey); err != nil {
		return err
	}
	if err := w.WriteVarint(uint64(len(spk.Attributes))); err != nil {
		return err
	}
	attrKeys := make([]string, 0, len(spk.Attributes))
	for key := range spk.Attributes {
		attrKeys = append(attrKeys, key)
	}
	sort.Strings(attrKeys)
	for _, key := range attrKeys {
		if err := w.WriteString(key); err != nil {
			return err
		}
		if err := w.WriteString(spk.Attributes[key]); err != nil {
			return err
		}
	}

	if err := w.WriteVarint(uint64(len(spk.Signatures))); err != nil {
		return err
	}
	for _, sig := range spk.Signatures {
		if err := writeSignature(w, sig); err != nil {
			return err
		}
	}
	return nil
}

// DeserializeSignedPublicKey reads a signed public key's framed-stream wire
// representation.
func DeserializeSignedPublicKey(r *stream.Reader) (*SignedPublicKey, error) {
	pubKey, err := r.ReadLenBytes(maxSignedKeyFieldLen)
	if err != nil {
		return nil, err
	}
	counterPubKey, err := r.ReadLenBytes(maxSignedKeyFieldLen)
	if err != nil {
		return nil, err
	}

	count, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	if count > 4096 {
		return nil, errors.NewFormatError("signed key attributes", fmt.Errorf("attribute count %d implausibly large", count))
	}
	attrs := make(map[string]string, count)
	for i := uint64(0); i < count; i++ {
		key, err := r.ReadString(4096)
		if err != nil {
			return nil, err
		}
		val, err := r.ReadString(maxSignedKeyFieldLen)
		if err != nil {
			return nil, err
		}
		attrs[key] = val
	}

	sigCount, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	if sigCount > 16 {
		return nil, errors.NewFormatError("signed key signatures", fmt.Errorf("signature count %d implausibly large", sigCount))
	}
	sigs := make([]Signature, 0, sigCount)
	for i := uint64(0); i < sigCount; i++ {
		sig, err := readSignature(r)
		if err != nil {
			return nil, err
		}
		sigs = append(sigs, sig)
	}

	return &SignedPublicKey{PublicKey: pubKey, CounterPublicKey: counterPubKey, Attributes: attrs, Signatures: sigs}, nil
}

// ParsePrimaryPublicKey parses spk's vouched-for public key as an ECDSA
// public key.
func (spk *SignedPublicKey) ParsePrimaryPublicKey() (*ecdsa.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(spk.PublicKey)
	if err != nil {
		return nil, errors.NewCryptoError("parse", err)
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.NewCryptoError("parse", fmt.Errorf("signed public key is not ECDSA"))
	}
	return ecPub, nil
}
