package cli

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/Picocrypt/zxcvbn-go"
	"github.com/spf13/cobra"
	"github.com/google/go-tpm/tpm2"

	wan24crypto "wan24setup/internal/crypto"
	"wan24setup/internal/errors"
	"wan24setup/internal/keys"
	"wan24setup/internal/password"
	"wan24setup/internal/stream"
	"wan24setup/internal/tpm"
	"wan24setup/internal/util"
)

// defaultTPMHandle is the persistent HMAC key handle createKey binds to
// when -tpm is given. Production deployments that provision their own
// handle can override it with --tpmHandle.
const defaultTPMHandle = 0x81000001

func init() {
	createKeyCmd.SilenceErrors = true
	createKeyCmd.SilenceUsage = true
	rootCmd.AddCommand(createKeyCmd)

	createKeyCmd.Flags().StringVar(&ckPath, "path", "", "output path for the private key suite")
	createKeyCmd.Flags().StringVar(&ckEmail, "email", "", "owner email recorded in the key signing request")
	createKeyCmd.Flags().StringVar(&ckPwdEnv, "pwd", "", "environment variable holding the suite password")
	createKeyCmd.Flags().BoolVar(&ckTPM, "tpm", false, "bind the suite password to this machine's TPM")
	createKeyCmd.Flags().StringVar(&ckTPMDevice, "tpmDevice", "/dev/tpmrm0", "TPM resource manager device path")
	createKeyCmd.Flags().Uint32Var(&ckTPMHandle, "tpmHandle", defaultTPMHandle, "persistent TPM HMAC key handle")
	createKeyCmd.Flags().BoolVar(&ckGenerate, "generate", false, "generate a random suite password instead of prompting for one")
	createKeyCmd.Flags().IntVar(&ckGenLength, "generateLength", 32, "length of the generated password when --generate is set")
	_ = createKeyCmd.MarkFlagRequired("path")
	_ = createKeyCmd.MarkFlagRequired("email")
}

var (
	ckPath      string
	ckEmail     string
	ckPwdEnv    string
	ckTPM       bool
	ckTPMDevice string
	ckTPMHandle uint32
	ckGenerate  bool
	ckGenLength int
)

var createKeyCmd = &cobra.Command{
	Use:   "createKey",
	Short: "Generate a private key suite and its self-signed key signing request",
	RunE:  runCreateKey,
}

func runCreateKey(cmd *cobra.Command, args []string) error {
	if _, err := mail.ParseAddress(ckEmail); err != nil {
		return errors.Wrap(errors.ErrUsage, "invalid --email: "+err.Error())
	}

	var pw []byte
	var err error
	if ckGenerate {
		var generated string
		generated, err = util.GenPassword(util.PassgenOptions{
			Length:  ckGenLength,
			Upper:   true,
			Lower:   true,
			Numbers: true,
			Symbols: true,
		})
		if err != nil {
			return err
		}
		if generated == "" {
			return errors.Wrap(errors.ErrUsage, "--generateLength must be positive")
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "generated suite password (record it now, it is not written to disk): %s\n", generated)
		pw = []byte(generated)
	} else {
		pw, err = AcquirePassword(ckPwdEnv)
		if err != nil {
			return err
		}
	}
	defer wan24crypto.SecureZero(pw)

	// zxcvbn only accepts a string; the copy it forces can't be wiped like
	// pw itself, but it's advisory output only and never touches disk.
	if score := zxcvbn.PasswordStrength(string(pw), nil).Score; score < 3 {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: suite password strength is weak (zxcvbn score %d/4)\n", score)
	}

	finalizeOpts := password.FinalizeOptions{UseTPM: ckTPM}
	var dev *tpm.Device
	if ckTPM {
		dev, err = tpm.OpenDevice(ckTPMDevice, tpm2.TPMHandle(ckTPMHandle))
		if err != nil {
			return err
		}
		defer dev.Close()
		finalizeOpts.Signer = dev
	}

	finalized, err := password.Finalize(pw, finalizeOpts)
	if err != nil {
		return err
	}
	defer wan24crypto.SecureZero(finalized)

	suite, err := keys.GenerateSuite()
	if err != nil {
		return err
	}

	attrs := map[string]string{
		keys.AttrPKIDomain:  keys.PKIDomain,
		keys.AttrOwnerEmail: strings.ToLower(ckEmail),
		keys.AttrUsages:     "installer package signing",
		keys.AttrPrimaryID:  suite.PrimaryKeyID(),
		keys.AttrCounterID:  suite.CounterKeyID(),
	}

	ksr, err := keys.NewKSR(suite.PrimaryPriv, suite.CounterPubBytes, attrs)
	if err != nil {
		return err
	}

	if err := keys.SaveEncrypted(ckPath, suite, finalized); err != nil {
		return err
	}

	if err := saveKSR(ckPath+".ksr", ksr); err != nil {
		return err
	}

	fmt.Printf("wrote %s and %s.ksr\n", ckPath, ckPath)
	return nil
}

func saveKSR(path string, ksr *keys.KSR) error {
	f, err := createFile(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := stream.NewWriter(f)
	return ksr.Serialize(w)
}
