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

// maxKSRFieldLen bounds every length-prefixed field decoded from an
// untrusted KSR, so a crafted request cannot force an unbounded allocation.
const maxKSRFieldLen = 1 << 20

// KSR is an unsigned-by-a-higher-tier key signing request: the requester's
// primary and counter public keys, a free-form attribute map, a declared
// purpose, and a self-signature by the requester's own primary key.
type KSR struct {
	PrimaryPublicKey []byte // x509 PKIX-marshalled ECDSA public key
	CounterPublicKey []byte // circl-marshalled ML-DSA public key
	Attributes       map[string]string
	Purpose          string
	SelfSignature    Signature
}

// NewKSR builds and self-signs a KSR for the given primary keypair and
// counter public key. attrs must already carry the mandatory keys (PKI
// domain, owner email, usages, primary/counter key IDs); NewKSR validates
// them before signing.
func NewKSR(primaryPriv *ecdsa.PrivateKey, counterPub []byte, attrs map[string]string) (*KSR, error) {
	if err := validateAttributes(attrs); err != nil {
		return nil, err
	}

	primaryPub, err := x509.MarshalPKIXPublicKey(&primaryPriv.PublicKey)
	if err != nil {
		return nil, errors.NewCryptoError("marshal", err)
	}

	k := &KSR{
		PrimaryPublicKey: primaryPub,
		CounterPublicKey: counterPub,
		Attributes:       attrs,
		Purpose:          PurposeKSRSelfSign,
	}

	digest := k.signingDigest()
	sig, err := ecdsa.SignASN1(rand.Reader, primaryPriv, digest[:])
	if err != nil {
		return nil, errors.NewCryptoError("sign", err)
	}

	k.SelfSignature = Signature{
		SignerID:  KeyID(primaryPub),
		Timestamp: time.Now(),
		HashAlg:   "SHA3-512",
		Purpose:   PurposeKSRSelfSign,
		Bytes:     sig,
	}
	return k, nil
}

// signingDigest computes the digest the self-signature attests to: both
// public keys, the attribute map, and the purpose string.
func (k *KSR) signingDigest() [64]byte {
	return attributeDigest([][]byte{k.PrimaryPublicKey, k.CounterPublicKey}, k.Attributes, k.Purpose)
}

// VerifySelfSignature checks that the KSR's self-signature was produced by
// the primary private key matching PrimaryPublicKey, over this exact KSR
// content.
func (k *KSR) VerifySelfSignature() error {
	if err := validateAttributes(k.Attributes); err != nil {
		return err
	}
	if k.SelfSignature.Purpose != PurposeKSRSelfSign {
		return errors.ErrKsrSelfSigInvalid
	}

	pub, err := x509.ParsePKIXPublicKey(k.PrimaryPublicKey)
	if err != nil {
		return errors.NewCryptoError("parse", err)
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return errors.NewCryptoError("parse", fmt.Errorf("primary public key is not ECDSA"))
	}

	digest := k.signingDigest()
	if !ecdsa.VerifyASN1(ecPub, digest[:], k.SelfSignature.Bytes) {
		return errors.ErrKsrSelfSigInvalid
	}
	return nil
}

// Serialize writes the KSR's framed-stream wire representation.
func (k *KSR) Serialize(w *stream.Writer) error {
	if err := w.WriteVersionTag(); err != nil {
		return err
	}
	if err := w.WriteLenBytes(k.PrimaryPublicKey); err != nil {
		return err
	}
	if err := w.WriteLenBytes(k.CounterPublicKey); err != nil {
		return err
	}
	if err := w.WriteVarint(uint64(len(k.Attributes))); err != nil {
		return err
	}

	attrKeys := make([]string, 0, len(k.Attributes))
	for key := range k.Attributes {
		attrKeys = append(attrKeys, key)
	}
	sort.Strings(attrKeys)
	for _, key := range attrKeys {
		if err := w.WriteString(key); err != nil {
			return err
		}
		if err := w.WriteString(k.Attributes[key]); err != nil {
			return err
		}
	}

	if err := w.WriteString(k.Purpose); err != nil {
		return err
	}
	return writeSignature(w, k.SelfSignature)
}

// DeserializeKSR reads a KSR's framed-stream wire representation.
func DeserializeKSR(r *stream.Reader) (*KSR, error) {
	if _, err := r.ReadVersionTag(); err != nil {
		return nil, err
	}
	k := &KSR{}

	primaryPub, err := r.ReadLenBytes(maxKSRFieldLen)
	if err != nil {
		return nil, err
	}
	k.PrimaryPublicKey = primaryPub

	counterPub, err := r.ReadLenBytes(maxKSRFieldLen)
	if err != nil {
		return nil, err
	}
	k.CounterPublicKey = counterPub

	count, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	if count > 4096 {
		return nil, errors.NewFormatError("ksr attributes", fmt.Errorf("attribute count %d implausibly large", count))
	}
	attrs := make(map[string]string, count)
	for i := uint64(0); i < count; i++ {
		key, err := r.ReadString(4096)
		if err != nil {
			return nil, err
		}
		val, err := r.ReadString(maxKSRFieldLen)
		if err != nil {
			return nil, err
		}
		attrs[key] = val
	}
	k.Attributes = attrs

	purpose, err := r.ReadString(4096)
	if err != nil {
		return nil, err
	}
	k.Purpose = purpose

	sig, err := readSignature(r)
	if err != nil {
		return nil, err
	}
	k.SelfSignature = sig

	return k, nil
}

func writeSignature(w *stream.Writer, sig Signature) error {
	if err := w.WriteString(sig.SignerID); err != nil {
		return err
	}
	if err := w.WriteInt64(sig.Timestamp.Unix()); err != nil {
		return err
	}
	if err := w.WriteString(sig.HashAlg); err != nil {
		return err
	}
	if err := w.WriteString(sig.Purpose); err != nil {
		return err
	}
	return w.WriteLenBytes(sig.Bytes)
}

func readSignature(r *stream.Reader) (Signature, error) {
	var sig Signature
	signerID, err := r.ReadString(4096)
	if err != nil {
		return sig, err
	}
	ts, err := r.ReadInt64()
	if err != nil {
		return sig, err
	}
	hashAlg, err := r.ReadString(256)
	if err != nil {
		return sig, err
	}
	purpose, err := r.ReadString(4096)
	if err != nil {
		return sig, err
	}
	sigBytes, err := r.ReadLenBytes(maxKSRFieldLen)
	if err != nil {
		return sig, err
	}
	return Signature{
		SignerID:  signerID,
		Timestamp: time.Unix(ts, 0).UTC(),
		HashAlg:   hashAlg,
		Purpose:   purpose,
		Bytes:     sigBytes,
	}, nil
}
