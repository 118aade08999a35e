// Package tpm wraps the TPM-HMAC step of the password pipeline (C4) behind
// a small interface, so callers never import the tpm2 transport directly
// and tests can substitute a software fallback.
package tpm

import (
	"crypto/hmac"
	"crypto/sha512"
	"hash"

	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"

	"wan24setup/internal/errors"
	"wan24setup/internal/log"
)

// HMACer computes an HMAC bound to a specific key handle. Device binds to
// a hardware root of trust; SoftwareHMAC is a drop-in fallback for
// environments (tests, CI) with no TPM present.
type HMACer interface {
	// HMAC computes an HMAC of data using the strongest digest algorithm
	// the implementation advertises. SoftwareHMAC keys it with key; Device
	// ignores key and uses its TPM-resident key.
	HMAC(key, data []byte) ([]byte, error)
}

// Device is a TPM-backed HMACer. It opens the platform TPM resource
// manager device and uses a persistent HMAC key handle.
type Device struct {
	tpm    transport.TPMCloser
	handle tpm2.TPMHandle
	algID  tpm2.TPMAlgID
}

// candidateAlgs lists digest algorithms in preference order: SHA-512,
// falling back to SHA-384, then SHA-256, per the password pipeline's
// "largest digest algorithm the TPM advertises" rule.
var candidateAlgs = []tpm2.TPMAlgID{
	tpm2.TPMAlgSHA512,
	tpm2.TPMAlgSHA384,
	tpm2.TPMAlgSHA256,
}

// OpenDevice opens the TPM resource manager at devicePath (typically
// "/dev/tpmrm0") and negotiates the strongest supported digest algorithm
// for the given persistent HMAC key handle.
func OpenDevice(devicePath string, handle tpm2.TPMHandle) (*Device, error) {
	t, err := transport.OpenTPM(devicePath)
	if err != nil {
		return nil, errors.NewCryptoError("tpm", err)
	}

	alg, err := negotiateAlg(t)
	if err != nil {
		t.Close()
		return nil, err
	}

	log.Debug("opened TPM device", log.String("path", devicePath), log.Int("alg", int(alg)))
	return &Device{tpm: t, handle: handle, algID: alg}, nil
}

func negotiateAlg(t transport.TPMCloser) (tpm2.TPMAlgID, error) {
	caps, err := tpm2.GetCapability{
		Capability:    tpm2.TPMCapAlgs,
		Property:      0,
		PropertyCount: 256,
	}.Execute(t)
	if err != nil {
		return 0, errors.NewCryptoError("tpm", err)
	}

	algList, err := caps.CapabilityData.Data.Algorithms()
	if err != nil {
		return 0, errors.NewCryptoError("tpm", err)
	}

	supported := map[tpm2.TPMAlgID]bool{}
	for _, a := range algList.AlgProperties {
		supported[a.Alg] = true
	}

	for _, candidate := range candidateAlgs {
		if supported[candidate] {
			return candidate, nil
		}
	}
	return 0, errors.ErrTpmUnavailable
}

// HMAC computes an HMAC of data using the TPM's HMAC command over the
// negotiated digest algorithm. The key argument is not used: the HMAC key
// is the TPM-resident key at the Device's handle. The TPM binds the
// result to this specific piece of hardware: the same call on another
// machine produces a different output even given the same inputs.
func (d *Device) HMAC(key, data []byte) ([]byte, error) {
	cmd := tpm2.HMAC{
		Handle: tpm2.NamedHandle{
			Handle: d.handle,
		},
		Buffer:  tpm2.TPM2BMaxBuffer{Buffer: data},
		HashAlg: d.algID,
	}
	resp, err := cmd.Execute(d.tpm)
	if err != nil {
		return nil, errors.NewCryptoError("tpm", err)
	}
	return resp.OutHMAC.Buffer, nil
}

// Close releases the underlying TPM transport.
func (d *Device) Close() error {
	if d == nil || d.tpm == nil {
		return nil
	}
	return d.tpm.Close()
}

// SoftwareHMAC implements HMACer without any hardware binding. It exists
// so the password pipeline and its tests can run on machines without a
// TPM; production installs should prefer Device.
type SoftwareHMAC struct {
	newHash func() hash.Hash
}

// NewSoftwareHMAC creates a SoftwareHMAC using SHA-512, mirroring the TPM's
// preferred digest algorithm.
func NewSoftwareHMAC() *SoftwareHMAC {
	return &SoftwareHMAC{newHash: sha512.New}
}

// HMAC computes a standard HMAC with no hardware binding.
func (s *SoftwareHMAC) HMAC(key, data []byte) ([]byte, error) {
	mac := hmac.New(s.newHash, key)
	mac.Write(data)
	return mac.Sum(nil), nil
}

var _ HMACer = (*SoftwareHMAC)(nil)
var _ HMACer = (*Device)(nil)
