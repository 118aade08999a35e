package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/google/go-tpm/tpm2"

	"wan24setup/internal/config"
	wan24crypto "wan24setup/internal/crypto"
	"wan24setup/internal/keys"
	"wan24setup/internal/password"
	"wan24setup/internal/stream"
	"wan24setup/internal/tpm"
)

func init() {
	signKeyCmd.SilenceErrors = true
	signKeyCmd.SilenceUsage = true
	rootCmd.AddCommand(signKeyCmd)

	signKeyCmd.Flags().StringVar(&skVendorPath, "vendorPki", "", "path to the vendor's own encrypted private key suite (falls back to vendorPkiPath in "+config.DefaultFileName+")")
	signKeyCmd.Flags().StringVar(&skVendorPwdEnv, "vendorPwd", "", "environment variable holding the vendor suite password")
	signKeyCmd.Flags().StringVar(&skKsrPath, "ksr", "", "path to the requester's key signing request")
	signKeyCmd.Flags().StringVar(&skOutPath, "out", "", "output path for the signed public key")
	signKeyCmd.Flags().BoolVar(&skTPM, "tpm", false, "unlock the vendor suite password via this machine's TPM")
	signKeyCmd.Flags().StringVar(&skTPMDevice, "tpmDevice", "/dev/tpmrm0", "TPM resource manager device path")
	signKeyCmd.Flags().Uint32Var(&skTPMHandle, "tpmHandle", defaultTPMHandle, "persistent TPM HMAC key handle")
	_ = signKeyCmd.MarkFlagRequired("ksr")
	_ = signKeyCmd.MarkFlagRequired("out")
}

var (
	skVendorPath   string
	skVendorPwdEnv string
	skKsrPath      string
	skOutPath      string
	skTPM          bool
	skTPMDevice    string
	skTPMHandle    uint32
)

var signKeyCmd = &cobra.Command{
	Use:   "signKey",
	Short: "Countersign a key signing request with the vendor's private key suite",
	RunE:  runSignKey,
}

func runSignKey(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	vendorPath, err := cfg.RequireVendorPki(skVendorPath)
	if err != nil {
		return err
	}

	pw, err := AcquirePassword(skVendorPwdEnv)
	if err != nil {
		return err
	}
	defer wan24crypto.SecureZero(pw)

	finalizeOpts := password.FinalizeOptions{UseTPM: skTPM}
	var dev *tpm.Device
	if skTPM {
		dev, err = tpm.OpenDevice(skTPMDevice, tpm2.TPMHandle(skTPMHandle))
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

	vendor, err := keys.LoadEncrypted(vendorPath, finalized)
	if err != nil {
		return err
	}

	ksrFile, err := openFile(skKsrPath)
	if err != nil {
		return err
	}
	requester, err := keys.DeserializeKSR(stream.NewReader(ksrFile))
	ksrFile.Close()
	if err != nil {
		return err
	}

	signed, err := keys.SignKSR(vendor, requester)
	if err != nil {
		return err
	}

	out, err := createFile(skOutPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := signed.Serialize(stream.NewWriter(out)); err != nil {
		return err
	}

	fmt.Printf("wrote %s\n", skOutPath)
	return nil
}
