// Package cli implements the CLI facade (C8): the createKey, printKsr,
// signKey, create, extract, and install verbs wired to the key/PKI,
// archive, and installer driver packages.
package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"wan24setup/internal/errors"
)

// Version is set by main.go.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "wan24setup",
	Short: "Signed installer package toolchain",
	Long: `wan24setup builds, signs, verifies, and unpacks installer packages:
  - createKey / printKsr / signKey manage the two-tier PKI (ECDSA P-521
    primary key, ML-DSA-65 post-quantum counter signature)
  - create / extract build and unpack the compressed package archive
  - install drives the extract-configure-run handoff to a setup plugin`,
	Version:       Version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// globalReporter lets the signal handler cancel whichever reporter the
// active command installed.
var globalReporter *Reporter

// Execute runs the CLI and returns the process exit code, per §6's exit
// code contract (0 success, 1 usage/runtime error, 2 invalid KSR, setup
// child codes propagated verbatim by the install verb itself).
func Execute(version string) int {
	Version = version
	rootCmd.Version = version

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		if globalReporter != nil {
			globalReporter.Cancel()
			fmt.Fprintln(os.Stderr, "\nCancelling operation...")
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return errors.ExitCode(err)
	}
	return 0
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
