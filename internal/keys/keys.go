// Package keys implements the private key suite, KSR, signed public key,
// PKI trust store, and package signature formats (C5). A suite holds a
// primary ECDSA keypair and a counter-signature ML-DSA-65 lattice keypair;
// every signature in the system is a (primary, counter) pair so a future
// break of ECDSA alone cannot forge a trusted signature.
package keys

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/schemes"
	"golang.org/x/crypto/sha3"

	"wan24setup/internal/errors"
)

// CounterScheme names the post-quantum lattice signature scheme used for
// every counter-signature in the system.
const CounterScheme = "ML-DSA-65"

// PKIDomain is the only domain value a trusted signed public key may carry.
const PKIDomain = "wan24Setup"

// Purpose strings. These are written verbatim into KSRs, signed public
// keys, and package signature containers, and checked verbatim on verify.
const (
	PurposeKSRSelfSign      = "wan24Setup installer package signing"
	PurposeSignedPublicKey  = "wan24Setup installer package signing permitted public signature key"
	PurposePackageSignature = "wan24Setup installer package signature"
)

// Attribute map keys. The attribute map is otherwise free-form
// string->string, but these five keys are mandatory on every KSR.
const (
	AttrPKIDomain  = "pki.domain"
	AttrOwnerEmail = "owner.email"
	AttrUsages     = "key.usages"
	AttrPrimaryID  = "key.primary.id"
	AttrCounterID  = "key.counter.id"
)

var mandatoryAttrs = []string{AttrPKIDomain, AttrOwnerEmail, AttrUsages, AttrPrimaryID, AttrCounterID}

// counterScheme resolves the circl signature scheme used for counter keys.
// It is resolved once and reused; schemes.ByName never returns nil for a
// name circl itself registers, but a nil check keeps a future typo from
// panicking deep inside a signing call.
func counterScheme() (sign.Scheme, error) {
	s := schemes.ByName(CounterScheme)
	if s == nil {
		return nil, errors.NewCryptoError("keys", fmt.Errorf("unknown counter-signature scheme %q", CounterScheme))
	}
	return s, nil
}

// ecdsaCurve is the "largest allowed curve" for the primary signature key.
func ecdsaCurve() elliptic.Curve {
	return elliptic.P521()
}

// KeyID identifies a public key as the hex-encoded SHA3-256 digest of its
// marshalled form. KSR attributes reference primary and counter keys by
// this identifier.
func KeyID(marshalled []byte) string {
	sum := sha3.Sum256(marshalled)
	return hex.EncodeToString(sum[:])
}

// Signature is one signature over a message: who signed, when, under what
// digest algorithm and for what declared purpose.
type Signature struct {
	SignerID  string
	Timestamp time.Time
	HashAlg   string // always "SHA3-512" today; kept explicit for future algorithm agility
	Purpose   string
	Bytes     []byte
}

// newPrimaryKeypair generates a fresh ECDSA primary keypair.
func newPrimaryKeypair() (*ecdsa.PrivateKey, error) {
	priv, err := ecdsa.GenerateKey(ecdsaCurve(), rand.Reader)
	if err != nil {
		return nil, errors.NewCryptoError("keygen", err)
	}
	return priv, nil
}

// newCounterKeypair generates a fresh ML-DSA-65 counter-signature keypair.
func newCounterKeypair() (sign.PublicKey, sign.PrivateKey, error) {
	scheme, err := counterScheme()
	if err != nil {
		return nil, nil, err
	}
	pub, priv, err := scheme.GenerateKey()
	if err != nil {
		return nil, nil, errors.NewCryptoError("keygen", err)
	}
	return pub, priv, nil
}

// validateAttributes checks that every mandatory attribute is present and
// syntactically plausible: non-empty, domain matches PKIDomain, owner email
// is lowercased and contains exactly one '@'.
func validateAttributes(attrs map[string]string) error {
	for _, key := range mandatoryAttrs {
		v, ok := attrs[key]
		if !ok || strings.TrimSpace(v) == "" {
			return errors.Wrap(errors.ErrAttributeMissing, key)
		}
	}
	if attrs[AttrPKIDomain] != PKIDomain {
		return errors.Wrap(errors.ErrAttributeMissing, fmt.Sprintf("%s must equal %q", AttrPKIDomain, PKIDomain))
	}
	email := attrs[AttrOwnerEmail]
	if email != strings.ToLower(email) {
		return errors.Wrap(errors.ErrAttributeMissing, AttrOwnerEmail+" must be lowercased")
	}
	if strings.Count(email, "@") != 1 {
		return errors.Wrap(errors.ErrAttributeMissing, AttrOwnerEmail+" not a syntactically plausible email address")
	}
	return nil
}

// attributeDigest computes the SHA3-512 digest that both KSR self-signatures
// and vendor signed-public-key signatures attest to: the concatenated
// public-key material, the attribute map in sorted-key order, and the
// purpose string. Sharing this function guarantees both signers hash
// exactly the same bytes for the same logical content.
func attributeDigest(pubKeyParts [][]byte, attrs map[string]string, purpose string) [64]byte {
	var buf bytes.Buffer
	for _, part := range pubKeyParts {
		buf.Write(part)
	}

	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		buf.WriteString(key)
		buf.WriteByte(0)
		buf.WriteString(attrs[key])
		buf.WriteByte(0)
	}
	buf.WriteString(purpose)

	return sha3.Sum512(buf.Bytes())
}
