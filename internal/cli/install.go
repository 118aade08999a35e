package cli

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/cobra"

	"wan24setup/internal/archive"
	"wan24setup/internal/config"
	"wan24setup/internal/errors"
	"wan24setup/internal/installer"
	"wan24setup/internal/keys"
)

func init() {
	installCmd.SilenceErrors = true
	installCmd.SilenceUsage = true
	rootCmd.AddCommand(installCmd)

	installCmd.Flags().StringVar(&inInstall, "install", "", "package file path or URL to install")
	installCmd.Flags().StringVar(&inPath, "path", "", "install destination passed through to the setup plugin")
	installCmd.Flags().BoolVar(&inAllowUnsigned, "allowUnsigned", false, "proceed even if the package carries no signature")
	installCmd.Flags().StringVar(&inVendorPki, "vendorPki", "", "path to the PKI trust store used to verify the package (falls back to vendorPkiPath in "+config.DefaultFileName+")")
	installCmd.Flags().StringVar(&inArguments, "arguments", "", "pass-through arguments recorded in the setup descriptor")
	installCmd.Flags().IntVar(&inPID, "pid", 0, "internal: caller PID to wait on before running the setup plugin")
	installCmd.Flags().StringVar(&inCmd, "cmd", "", "internal: detached command to run after the setup plugin exits")
	installCmd.Flags().StringVar(&inCmdArgs, "args", "", "internal: arguments for --cmd")
	_ = installCmd.Flags().MarkHidden("pid")
	_ = installCmd.Flags().MarkHidden("cmd")
	_ = installCmd.Flags().MarkHidden("args")
}

var (
	inInstall       string
	inPath          string
	inAllowUnsigned bool
	inVendorPki     string
	inArguments     string
	inPID           int
	inCmd           string
	inCmdArgs       string
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Verify, extract, and drive the installer handoff for a package",
	Long: `install has two faces, both reached through this one verb:

  - invoked by a human or launcher with --install <file|URL> --path
    <destination>, it verifies the package's signature (unless
    -allowUnsigned), extracts it into a fresh temp directory, and spawns
    a re-entrant child per the descriptor's ExitRequired policy
  - invoked by that re-entrant child with --pid (injected automatically),
    it waits for the original process to exit, then runs the registered
    setup plugin and any chained post-setup command`,
	RunE: runInstall,
}

func runInstall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if cmd.Flags().Changed("pid") {
		return runInstallReentrant(ctx)
	}
	return runInstallInitial(ctx)
}

// runInstallReentrant is the side a spawned child process runs: wait for
// the original caller PID, then hand off to the registered setup plugin.
func runInstallReentrant(ctx context.Context) error {
	wd, err := os.Getwd()
	if err != nil {
		return errors.NewFileError("getwd", "", err)
	}

	result, err := installer.RunSetupAsync(ctx, installer.RunArgs{
		PID:       inPID,
		TmpDir:    wd,
		AppPath:   inPath,
		Arguments: inArguments,
		PostCmd:   inCmd,
		PostArgs:  inCmdArgs,
	})
	if err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%w: exit code %d", errors.ErrSetupFailed, result.ExitCode)
	}
	return nil
}

// runInstallInitial is the side a human or launcher runs: locate the
// package, verify it, extract it into a fresh temp directory, then drive
// the installer state machine from there.
func runInstallInitial(ctx context.Context) error {
	if inInstall == "" {
		return errors.Wrap(errors.ErrUsage, "--install is required")
	}
	if inPath == "" {
		return errors.Wrap(errors.ErrUsage, "--path is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	packagePath, cleanupDownload, err := resolvePackageSource(inInstall, cfg.TmpDir)
	if err != nil {
		return err
	}
	if cleanupDownload != "" {
		defer os.Remove(cleanupDownload)
	}

	if err := verifyInstallPackage(packagePath, cfg); err != nil {
		return err
	}

	tmpDir, err := os.MkdirTemp(cfg.TmpDir, "wan24setup-install-*")
	if err != nil {
		return errors.NewFileError("mkdtemp", cfg.TmpDir, err)
	}

	src, err := openFile(packagePath)
	if err != nil {
		return err
	}
	err = archive.Extract(src, archive.ExtractOptions{TargetDir: tmpDir})
	src.Close()
	if err != nil {
		os.RemoveAll(tmpDir)
		return err
	}

	result, err := installer.Drive(ctx, installer.DriveOptions{
		TmpDir:  tmpDir,
		AppPath: inPath,
	})
	if err != nil {
		return err
	}
	if result.RequireExit {
		os.Exit(0)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("%w: exit code %d", errors.ErrSetupFailed, result.ExitCode)
	}
	return nil
}

// resolvePackageSource returns a local file path for src, downloading it
// to tmpDir first if src is an http(s) URL. The second return value is the
// downloaded file's path when one was created, so the caller can clean it
// up; it is empty when src was already a local path.
func resolvePackageSource(src, tmpDir string) (path string, downloaded string, err error) {
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		return src, "", nil
	}

	client := retryablehttp.NewClient()
	client.Logger = nil
	resp, err := client.Get(src)
	if err != nil {
		return "", "", errors.Wrap(err, "download "+src)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", errors.Wrap(fmt.Errorf("HTTP %d", resp.StatusCode), "download "+src)
	}

	out, err := os.CreateTemp(tmpDir, "wan24setup-download-*.pkg")
	if err != nil {
		return "", "", errors.NewFileError("create", tmpDir, err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(out.Name())
		return "", "", errors.NewFileError("write", out.Name(), err)
	}
	out.Close()
	return out.Name(), out.Name(), nil
}

// verifyInstallPackage enforces §6's signed-package policy the same way
// the extract verb does: a missing `<package>.sig` is only tolerated under
// -allowUnsigned; a present signature is always checked against the
// resolved vendor PKI trust store.
func verifyInstallPackage(packagePath string, cfg config.Config) error {
	sig, err := keys.LoadPackageSignature(packagePath + ".sig")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if inAllowUnsigned {
				return nil
			}
			return errors.Wrap(errors.ErrUntrustedPackage, "no package signature found and -allowUnsigned not set")
		}
		return err
	}

	trustStorePath, err := cfg.RequireVendorPki(inVendorPki)
	if err != nil {
		return err
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
