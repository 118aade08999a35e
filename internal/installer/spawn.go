package installer

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strconv"

	"wan24setup/internal/errors"
	"wan24setup/internal/log"
)

// SpawnOptions configures one re-entrant invocation of the installer
// binary itself (the "spawn child" step of the state-machine diagram).
type SpawnOptions struct {
	// Executable is the binary to spawn; defaults to os.Executable().
	Executable string
	// TmpDir is both the child's working directory and where setup.json
	// lives.
	TmpDir string
	// CallerPID is injected as --pid: the PID the child should wait on
	// before running the plugin, or -1 if there is none to wait for.
	CallerPID int
	// AppPath is injected as --path: the install destination.
	AppPath string
	// ExtraArgs are appended after the injected --pid/--path flags.
	ExtraArgs []string
	// ExitRequired means the caller intends to exit once the child is
	// spawned: start the child and return immediately instead of waiting.
	ExitRequired bool
}

// ChildResult reports what happened to a spawned child: either it was
// merely started (RequireExit) or it ran to completion with captured
// output.
type ChildResult struct {
	ExitCode    int
	Stdout      string
	Stderr      string
	RequireExit bool
}

// SpawnChild starts the installer binary again with --pid/--path
// injected, working directory opts.TmpDir. Use-shell-execute/elevation
// and hide-window are Windows-specific concerns of the original design;
// SpawnOptions carries no settings for them, and on POSIX platforms this
// is a plain child process.
func SpawnChild(ctx context.Context, opts SpawnOptions) (*ChildResult, error) {
	exe := opts.Executable
	if exe == "" {
		self, err := os.Executable()
		if err != nil {
			return nil, errors.Wrap(err, "resolve installer executable path")
		}
		exe = self
	}

	args := append([]string{
		"install",
		"--pid", strconv.Itoa(opts.CallerPID),
		"--path", opts.AppPath,
	}, opts.ExtraArgs...)

	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Dir = opts.TmpDir

	if opts.ExitRequired {
		if err := cmd.Start(); err != nil {
			return nil, errors.Wrap(err, "spawn setup child")
		}
		log.Info("spawned setup child, caller will exit", log.Int("pid", cmd.Process.Pid))
		return &ChildResult{RequireExit: true}, nil
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if ok := errors.As(runErr, &exitErr); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, errors.Wrap(runErr, "run setup child")
		}
	}

	return &ChildResult{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}
