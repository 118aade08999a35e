package keys

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/x509"
	"fmt"
	"os"
	"sort"

	"golang.org/x/crypto/sha3"

	"wan24setup/internal/errors"
	"wan24setup/internal/log"
	"wan24setup/internal/stream"
)

// maxTrustStoreFieldLen bounds length-prefixed fields decoded from a trust
// store file.
const maxTrustStoreFieldLen = 1 << 20

// TrustAnchor is one trusted vendor keypair's public half, identified by
// the primary key's ID.
type TrustAnchor struct {
	PrimaryPub  []byte // x509 PKIX-marshalled ECDSA public key
	CounterPub  []byte // circl-marshalled ML-DSA public key
	Description string
}

// TrustStore is a serialized, signed collection of trust anchors: the
// roots a signed public key's chain must terminate in. The store itself is
// self-signed by a root signing key so a tampered store is detectable
// before any anchor inside it is consulted.
type TrustStore struct {
	Anchors  map[string]TrustAnchor // keyed by PrimaryKeyID
	RootPub  []byte                 // x509 PKIX-marshalled ECDSA public key that signs the store
	StoreSig []byte                 // signature over the serialized anchor set
}

// NewTrustStore creates an empty trust store signed by rootPriv.
func NewTrustStore(rootPriv *ecdsa.PrivateKey) (*TrustStore, error) {
	rootPub, err := x509.MarshalPKIXPublicKey(&rootPriv.PublicKey)
	if err != nil {
		return nil, errors.NewCryptoError("marshal", err)
	}
	ts := &TrustStore{Anchors: map[string]TrustAnchor{}, RootPub: rootPub}
	if err := ts.resign(rootPriv); err != nil {
		return nil, err
	}
	return ts, nil
}

// AddAnchor adds or replaces a trust anchor and re-signs the store.
func (ts *TrustStore) AddAnchor(id string, anchor TrustAnchor, rootPriv *ecdsa.PrivateKey) error {
	ts.Anchors[id] = anchor
	return ts.resign(rootPriv)
}

func (ts *TrustStore) anchorDigest() [64]byte {
	ids := make([]string, 0, len(ts.Anchors))
	for id := range ts.Anchors {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var buf bytes.Buffer
	for _, id := range ids {
		a := ts.Anchors[id]
		buf.WriteString(id)
		buf.WriteByte(0)
		buf.Write(a.PrimaryPub)
		buf.Write(a.CounterPub)
		buf.WriteString(a.Description)
		buf.WriteByte(0)
	}
	return sha3.Sum512(buf.Bytes())
}

func (ts *TrustStore) resign(rootPriv *ecdsa.PrivateKey) error {
	digest := ts.anchorDigest()
	sig, err := ecdsa.SignASN1(rand.Reader, rootPriv, digest[:])
	if err != nil {
		return errors.NewCryptoError("sign", err)
	}
	ts.StoreSig = sig
	return nil
}

// VerifyStoreSignature checks that the anchor set has not been tampered
// with since it was last signed.
func (ts *TrustStore) VerifyStoreSignature() error {
	pub, err := x509.ParsePKIXPublicKey(ts.RootPub)
	if err != nil {
		return errors.NewCryptoError("parse", err)
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return errors.NewCryptoError("parse", fmt.Errorf("trust store root key is not ECDSA"))
	}
	digest := ts.anchorDigest()
	if !ecdsa.VerifyASN1(ecPub, digest[:], ts.StoreSig) {
		return errors.ErrIntegrityFailure
	}
	return nil
}

// ValidateChain checks that spk's signature chain terminates in a trust
// anchor present in the store, and that domain matches the required PKI
// domain. This is the sole entry point package verification uses to decide
// whether a signer is trusted.
func (ts *TrustStore) ValidateChain(spk *SignedPublicKey, requiredDomain string) error {
	if err := ts.VerifyStoreSignature(); err != nil {
		return err
	}

	if got := spk.Attributes[AttrPKIDomain]; got != requiredDomain {
		return fmt.Errorf("%w: domain %q does not match required %q", errors.ErrChainNotTrusted, got, requiredDomain)
	}

	if len(spk.Signatures) != 2 {
		return errors.ErrChainNotTrusted
	}
	signerID := spk.Signatures[0].SignerID
	anchor, ok := ts.Anchors[signerID]
	if !ok {
		return errors.ErrChainNotTrusted
	}

	vendorPub, err := x509.ParsePKIXPublicKey(anchor.PrimaryPub)
	if err != nil {
		return errors.NewCryptoError("parse", err)
	}
	ecVendorPub, ok := vendorPub.(*ecdsa.PublicKey)
	if !ok {
		return errors.NewCryptoError("parse", fmt.Errorf("trust anchor primary key is not ECDSA"))
	}

	if err := spk.VerifyAgainst(ecVendorPub, anchor.CounterPub); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrChainNotTrusted, err)
	}
	return nil
}

// Encode serializes the trust store to its framed-stream wire
// representation.
func (ts *TrustStore) Encode() ([]byte, error) {
	var buf bytes.Buffer
	w := stream.NewWriter(&buf)
	if err := w.WriteVersionTag(); err != nil {
		return nil, err
	}
	if err := w.WriteLenBytes(ts.RootPub); err != nil {
		return nil, err
	}
	if err := w.WriteLenBytes(ts.StoreSig); err != nil {
		return nil, err
	}
	if err := w.WriteVarint(uint64(len(ts.Anchors))); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(ts.Anchors))
	for id := range ts.Anchors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		a := ts.Anchors[id]
		if err := w.WriteString(id); err != nil {
			return nil, err
		}
		if err := w.WriteLenBytes(a.PrimaryPub); err != nil {
			return nil, err
		}
		if err := w.WriteLenBytes(a.CounterPub); err != nil {
			return nil, err
		}
		if err := w.WriteString(a.Description); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeTrustStore parses a trust store's framed-stream wire
// representation. It does not itself verify the store signature; call
// VerifyStoreSignature or ValidateChain to do that.
func DecodeTrustStore(data []byte) (*TrustStore, error) {
	r := stream.NewReader(bytes.NewReader(data))
	if _, err := r.ReadVersionTag(); err != nil {
		return nil, err
	}

	rootPub, err := r.ReadLenBytes(maxTrustStoreFieldLen)
	if err != nil {
		return nil, err
	}
	storeSig, err := r.ReadLenBytes(maxTrustStoreFieldLen)
	if err != nil {
		return nil, err
	}
	count, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	if count > 1<<16 {
		return nil, errors.NewFormatError("trust store anchors", fmt.Errorf("anchor count %d implausibly large", count))
	}

	anchors := make(map[string]TrustAnchor, count)
	for i := uint64(0); i < count; i++ {
		id, err := r.ReadString(4096)
		if err != nil {
			return nil, err
		}
		primaryPub, err := r.ReadLenBytes(maxTrustStoreFieldLen)
		if err != nil {
			return nil, err
		}
		counterPub, err := r.ReadLenBytes(maxTrustStoreFieldLen)
		if err != nil {
			return nil, err
		}
		desc, err := r.ReadString(4096)
		if err != nil {
			return nil, err
		}
		anchors[id] = TrustAnchor{PrimaryPub: primaryPub, CounterPub: counterPub, Description: desc}
	}

	return &TrustStore{Anchors: anchors, RootPub: rootPub, StoreSig: storeSig}, nil
}

// LoadTrustStore reads and decodes a trust store file at path.
func LoadTrustStore(path string) (*TrustStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewFileError("read", path, err)
	}
	ts, err := DecodeTrustStore(data)
	if err != nil {
		return nil, err
	}
	log.Debug("loaded PKI trust store", log.String("path", path), log.Int("anchors", len(ts.Anchors)))
	return ts, nil
}

// Save encodes and writes the trust store to path.
func (ts *TrustStore) Save(path string) error {
	data, err := ts.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, FileMode); err != nil {
		return errors.NewFileError("write", path, err)
	}
	log.Info("wrote PKI trust store", log.String("path", path))
	return nil
}
