package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/google/go-tpm/tpm2"

	"wan24setup/internal/archive"
	wan24crypto "wan24setup/internal/crypto"
	"wan24setup/internal/errors"
	"wan24setup/internal/keys"
	"wan24setup/internal/password"
	"wan24setup/internal/stream"
	"wan24setup/internal/tpm"
)

func init() {
	createCmd.SilenceErrors = true
	createCmd.SilenceUsage = true
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().StringVar(&crSrcDir, "src", "", "directory tree to package")
	createCmd.Flags().StringVar(&crOutPath, "out", "", "output path for the compressed package archive")
	createCmd.Flags().BoolVar(&crQuiet, "quiet", false, "suppress progress output")
	createCmd.Flags().StringVar(&crSignSuite, "sign", "", "path to the signer's encrypted private key suite; signs the package if set")
	createCmd.Flags().StringVar(&crSignedKey, "signed", "", "path to the vendor-issued signed public key to merge into the suite before signing")
	createCmd.Flags().StringVar(&crSignPwdEnv, "pwd", "", "environment variable holding the signing suite password")
	createCmd.Flags().BoolVar(&crTPM, "tpm", false, "unlock the signing suite password via this machine's TPM")
	createCmd.Flags().StringVar(&crTPMDevice, "tpmDevice", "/dev/tpmrm0", "TPM resource manager device path")
	createCmd.Flags().Uint32Var(&crTPMHandle, "tpmHandle", defaultTPMHandle, "persistent TPM HMAC key handle")
	_ = createCmd.MarkFlagRequired("src")
	_ = createCmd.MarkFlagRequired("out")
}

var (
	crSrcDir     string
	crOutPath    string
	crQuiet      bool
	crSignSuite  string
	crSignedKey  string
	crSignPwdEnv string
	crTPM        bool
	crTPMDevice  string
	crTPMHandle  uint32
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Build a compressed, optionally signed installer package from a directory tree",
	RunE:  runCreate,
}

func runCreate(cmd *cobra.Command, args []string) error {
	basePath := crSrcDir
	if !strings.HasSuffix(basePath, string(filepath.Separator)) {
		basePath += string(filepath.Separator)
	}

	entries, err := walkEntries(basePath)
	if err != nil {
		return err
	}

	reporter := NewReporter(crQuiet)
	globalReporter = reporter
	defer func() { globalReporter = nil }()

	uncompressed, err := archive.Create(archive.CreateOptions{
		BasePath:   basePath,
		Entries:    entries,
		OutputPath: crOutPath,
		BytesProgress: func(done, total int64) {
			reporter.SetStatus("packing")
			reporter.SetByteProgress(done, total)
			reporter.Update()
		},
		Cancel: reporter.IsCancelled,
	})
	reporter.Finish()
	if err != nil {
		return err
	}

	if crSignSuite != "" {
		if err := signPackage(crOutPath); err != nil {
			return err
		}
	}

	fmt.Println(uncompressed)
	return nil
}

// walkEntries builds the archive.Entry list for every file and directory
// under basePath, matching the layout archive.Create expects: each entry
// carries the walked path (under basePath) in AbsPath, directories and
// files both recorded; archive.Create makes them relative to its BasePath.
func walkEntries(basePath string) ([]archive.Entry, error) {
	var entries []archive.Entry
	err := filepath.Walk(basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == filepath.Clean(basePath) {
			return nil
		}
		entries = append(entries, archive.Entry{AbsPath: path, IsDir: info.IsDir()})
		return nil
	})
	if err != nil {
		return nil, errors.NewFileError("walk", basePath, err)
	}
	return entries, nil
}

// signPackage reads the just-created archive back in full and produces its
// detached `<package>.sig` signature, per §6's external interface naming.
// If -signed is set, it first merges that vendor-issued signed public key
// into the suite and re-persists it (the "finalize" step of the key
// lifecycle), since SignPackage refuses a suite with no signed public key.
func signPackage(packagePath string) error {
	pw, err := AcquirePassword(crSignPwdEnv)
	if err != nil {
		return err
	}
	defer wan24crypto.SecureZero(pw)

	finalizeOpts := password.FinalizeOptions{UseTPM: crTPM}
	var dev *tpm.Device
	if crTPM {
		dev, err = tpm.OpenDevice(crTPMDevice, tpm2.TPMHandle(crTPMHandle))
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

	suite, err := keys.LoadEncrypted(crSignSuite, finalized)
	if err != nil {
		return err
	}

	if crSignedKey != "" {
		f, err := openFile(crSignedKey)
		if err != nil {
			return err
		}
		signed, err := keys.DeserializeSignedPublicKey(stream.NewReader(f))
		f.Close()
		if err != nil {
			return err
		}
		if err := keys.FinalizeSuite(suite, signed); err != nil {
			return err
		}
		if err := keys.SaveEncrypted(crSignSuite, suite, finalized); err != nil {
			return err
		}
	}

	packageBytes, err := os.ReadFile(packagePath)
	if err != nil {
		return errors.NewFileError("read", packagePath, err)
	}

	sig, err := keys.SignPackage(suite, packageBytes)
	if err != nil {
		return err
	}

	return keys.SavePackageSignature(packagePath+".sig", sig)
}
