// Package installer implements the installer driver (C6): the state
// machine that takes an extracted package from EXTRACTED through
// CONFIGURED, spawning and (conditionally) waiting on a re-entrant child
// process that runs the registered plugin and any post-setup command.
package installer

import (
	"context"
	"os"

	"wan24setup/internal/log"
)

// DriveOptions configures the CONFIGURED-state branch of the installer
// state machine: the package has already been extracted to TmpDir and its
// descriptor is about to decide what happens next.
type DriveOptions struct {
	// Executable overrides the binary path re-spawned; see SpawnOptions.
	Executable string
	// TmpDir is the extracted package root.
	TmpDir string
	// AppPath is the install destination (--path).
	AppPath string
	// ExtraArgs are any caller pass-through arguments.
	ExtraArgs []string
	// SkipExit forces the non-exit-required branch even if the
	// descriptor asks for ExitRequired, for callers that already know
	// they don't need to release anything before the plugin runs.
	SkipExit bool
}

// Drive loads setup.json from opts.TmpDir and carries out the
// exit-required/wait branch described by the installer driver's state
// diagram: spawn the re-entrant child, and either return immediately
// (RequireExit=true, caller must exit) or wait for it and apply the
// failure policy — preserve TmpDir on a non-zero child exit, delete it on
// success.
func Drive(ctx context.Context, opts DriveOptions) (*ChildResult, error) {
	desc, err := LoadDescriptor(opts.TmpDir)
	if err != nil {
		return nil, err
	}

	exitRequired := desc.ExitRequired && !opts.SkipExit
	callerPID := -1
	if exitRequired {
		callerPID = os.Getpid()
	}

	result, err := SpawnChild(ctx, SpawnOptions{
		Executable:   opts.Executable,
		TmpDir:       opts.TmpDir,
		CallerPID:    callerPID,
		AppPath:      opts.AppPath,
		ExtraArgs:    opts.ExtraArgs,
		ExitRequired: exitRequired,
	})
	if err != nil {
		return nil, err
	}

	if result.RequireExit {
		// TmpDir is intentionally left in place: the re-entrant child
		// still needs it once this process exits.
		return result, nil
	}

	if result.ExitCode == 0 {
		if err := os.RemoveAll(opts.TmpDir); err != nil {
			log.Warn("failed to remove temp dir after successful install", log.String("path", opts.TmpDir), log.Err(err))
		}
	} else {
		log.Warn("setup child exited non-zero, preserving temp dir for diagnosis", log.String("path", opts.TmpDir), log.Int("exitCode", result.ExitCode))
	}

	return result, nil
}
