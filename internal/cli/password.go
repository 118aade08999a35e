package cli

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"

	"wan24setup/internal/password"
)

// isTerminal returns true if stdin is a terminal (not piped/redirected).
func isTerminal() bool {
	return term.IsTerminal(int(syscall.Stdin))
}

// readPasswordInteractive prompts on stderr and reads without echo when
// stdin is a terminal; used only as a fallback when the named password
// env var is unset, since §6 names env vars as the password's primary
// external interface.
func readPasswordInteractive(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	if !isTerminal() {
		return password.AcquireFromStdin(os.Stdin)
	}
	pw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	return pw, nil
}

// AcquirePassword reads a password from the named environment variable,
// falling back to an interactive/stdin prompt if envVar is empty or
// unset — the CLI facade's single password-acquisition entry point.
func AcquirePassword(envVar string) ([]byte, error) {
	if envVar != "" {
		if pw, err := password.AcquireFromEnv(envVar); err == nil {
			return pw, nil
		}
	}
	return readPasswordInteractive("Password: ")
}
