package cli

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"wan24setup/internal/archive"
	"wan24setup/internal/errors"
	"wan24setup/internal/keys"
)

func init() {
	extractCmd.SilenceErrors = true
	extractCmd.SilenceUsage = true
	rootCmd.AddCommand(extractCmd)

	extractCmd.Flags().StringVar(&exPackagePath, "package", "", "path to the compressed package archive")
	extractCmd.Flags().StringVar(&exTargetDir, "target", "", "directory to extract the package into")
	extractCmd.Flags().StringVar(&exTrustStore, "trustStore", "", "path to the PKI trust store used to verify the package signature")
	extractCmd.Flags().BoolVar(&exAllowUnsigned, "allowUnsigned", false, "proceed even if the package carries no signature")
	extractCmd.Flags().BoolVar(&exQuiet, "quiet", false, "suppress progress output")
	_ = extractCmd.MarkFlagRequired("package")
	_ = extractCmd.MarkFlagRequired("target")
}

var (
	exPackagePath   string
	exTargetDir     string
	exTrustStore    string
	exAllowUnsigned bool
	exQuiet         bool
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Verify (unless -allowUnsigned) and extract a package archive",
	RunE:  runExtract,
}

func runExtract(cmd *cobra.Command, args []string) error {
	if err := verifyPackageSignature(exPackagePath, exTrustStore, exAllowUnsigned); err != nil {
		return err
	}

	src, err := openFile(exPackagePath)
	if err != nil {
		return err
	}
	defer src.Close()

	reporter := NewReporter(exQuiet)
	globalReporter = reporter
	defer func() { globalReporter = nil }()

	err = archive.Extract(src, archive.ExtractOptions{
		TargetDir: exTargetDir,
		Progress: func(_ float32, info string) {
			reporter.SetStatus("extracting")
			reporter.SetProgress(0, info)
			reporter.Update()
		},
		Cancel: reporter.IsCancelled,
	})
	reporter.Finish()
	if err != nil {
		return err
	}

	fmt.Printf("extracted to %s\n", exTargetDir)
	return nil
}

// verifyPackageSignature enforces §6's signed-package policy: a missing
// `<package>.sig` is only tolerated under -allowUnsigned; a present
// signature is always checked against trustStore regardless of that flag.
func verifyPackageSignature(packagePath, trustStorePath string, allowUnsigned bool) error {
	sigPath := packagePath + ".sig"
	sig, err := keys.LoadPackageSignature(sigPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if allowUnsigned {
				return nil
			}
			return errors.Wrap(errors.ErrUntrustedPackage, "no package signature found and -allowUnsigned not set")
		}
		return err
	}

	if trustStorePath == "" {
		return errors.Wrap(errors.ErrUsage, "-trustStore is required to verify a signed package")
	}
	trustStore, err := keys.LoadTrustStore(trustStorePath)
	if err != nil {
		return err
	}

	packageBytes, err := os.ReadFile(packagePath)
	if err != nil {
		return errors.NewFileError("read", packagePath, err)
	}

	return sig.Verify(packageBytes, trustStore)
}
