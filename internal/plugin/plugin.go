// Package plugin is the static equivalent of a dynamically discovered
// setup implementor: rather than scanning loaded modules for a
// constructible type, a setup binary registers its one Setup
// implementation from an init() func, and the installer driver looks it
// up by name at re-entry time.
package plugin

import (
	"context"
	"fmt"
	"sync"

	"wan24setup/internal/errors"
)

// Handle carries the scoped process-wide state the driver would otherwise
// keep in package-level variables: the arguments a setup plugin needs to
// finish the installation, owned for the lifetime of one RunSetupAsync
// call and dropped on return.
type Handle struct {
	// Arguments is the caller's raw, unparsed pass-through argument string.
	Arguments string
	// AppPath is the destination install path (--path).
	AppPath string
	// Command and CommandArgs name an optional post-setup command to
	// spawn detached once Run returns, if the descriptor demanded exit.
	Command     string
	CommandArgs string
}

// Setup is implemented by exactly one type per setup binary. Run performs
// the actual install/configure work and returns the process exit code the
// installer driver should propagate, or an error if it could not even
// attempt the work.
type Setup interface {
	Run(ctx context.Context, h *Handle) (exitCode int, err error)
}

var (
	mu         sync.Mutex
	registered Setup
	regName    string
)

// Register installs s as the setup binary's implementor, under name (used
// only for diagnostics). Calling Register twice is a programming error —
// exactly one implementor is expected per binary — and panics, matching
// the "exactly one is expected" contract from the installer driver design.
func Register(name string, s Setup) {
	mu.Lock()
	defer mu.Unlock()
	if registered != nil {
		panic(fmt.Sprintf("plugin: %q already registered as %q, cannot also register %q", regName, regName, name))
	}
	registered = s
	regName = name
}

// Lookup returns the registered Setup implementor, or ErrKeyNotFound if
// the binary never called Register — the static replacement for "scan
// loaded assemblies for a constructible ISetup; exactly one is expected."
func Lookup() (Setup, error) {
	mu.Lock()
	defer mu.Unlock()
	if registered == nil {
		return nil, errors.Wrap(errors.ErrKeyNotFound, "plugin: no setup implementor registered")
	}
	return registered, nil
}

// reset clears the registration. Test-only: production binaries register
// exactly once from init() and never need to undo it.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	registered = nil
	regName = ""
}
