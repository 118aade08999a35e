// Package password implements the password acquisition and finalization
// pipeline (C4): reading a password from an environment variable or bounded
// stdin, then stretching it through PBKDF2-SHA3-384 and Argon2id, and
// optionally binding the result to a TPM via HMAC.
package password

import (
	"bufio"
	"io"
	"os"

	wan24crypto "wan24setup/internal/crypto"
	"wan24setup/internal/errors"
	"wan24setup/internal/log"
	"wan24setup/internal/tpm"
	"wan24setup/internal/util"
)

// AcquireFromEnv reads a password from the named environment variable,
// verbatim (no trimming).
func AcquireFromEnv(varName string) ([]byte, error) {
	val, ok := os.LookupEnv(varName)
	if !ok {
		return nil, errors.NewValidationError("env", "variable "+varName+" is not set")
	}
	return []byte(val), nil
}

// AcquireFromStdin reads a password from r up to EOF, bounded to
// util.MaxPasswordBytes. Reading one byte beyond the bound fails with
// ErrPasswordTooLong rather than silently truncating.
func AcquireFromStdin(r io.Reader) ([]byte, error) {
	limited := io.LimitReader(r, util.MaxPasswordBytes+1)
	data, err := io.ReadAll(bufio.NewReader(limited))
	if err != nil {
		return nil, errors.Wrap(err, "read password from stdin")
	}
	if len(data) > util.MaxPasswordBytes {
		return nil, errors.ErrPasswordTooLong
	}
	if len(data) == 0 {
		return nil, errors.ErrPasswordEmpty
	}
	return data, nil
}

// FinalizeOptions configures Finalize.
type FinalizeOptions struct {
	// UseTPM requests that the stretched password be HMACed under a TPM
	// key, binding the result to this specific machine.
	UseTPM bool
	Signer tpm.HMACer // required when UseTPM is true
}

// Finalize runs the two-stage KDF (PBKDF2-SHA3-384 then Argon2id) over
// password, then optionally the TPM HMAC step, returning the finalized
// password used as the key suite's AEAD key. Every intermediate buffer is
// zeroed before return, including on error paths.
func Finalize(password []byte, opts FinalizeOptions) ([]byte, error) {
	if len(password) == 0 {
		return nil, errors.ErrPasswordEmpty
	}

	salt := wan24crypto.DeterministicSalt(password)
	stretched := wan24crypto.StretchPassword(password, salt)
	defer wan24crypto.SecureZero(stretched)

	finalized := wan24crypto.Argon2idFromStretched(stretched, salt)

	if !opts.UseTPM {
		return finalized, nil
	}

	if opts.Signer == nil {
		wan24crypto.SecureZero(finalized)
		return nil, errors.ErrTpmUnavailable
	}

	bound, err := opts.Signer.HMAC(finalized, finalized)
	wan24crypto.SecureZero(finalized)
	if err != nil {
		log.Error("TPM HMAC failed", log.Err(err))
		return nil, errors.NewCryptoError("tpm", err)
	}
	return bound, nil
}
