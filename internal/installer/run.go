package installer

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"wan24setup/internal/errors"
	"wan24setup/internal/log"
	"wan24setup/internal/plugin"
)

// RunArgs is what a re-entered installer process was invoked with: the
// --pid/--path/--cmd/--args flags plus any caller pass-through.
type RunArgs struct {
	// PID is the caller's PID to wait on, or -1 if there is none.
	PID int
	// TmpDir holds setup.json and is the plugin's working directory.
	TmpDir string
	// AppPath is the install destination (--path).
	AppPath string
	// Arguments is the caller's raw pass-through argument string.
	Arguments string
	// PostCmd/PostArgs optionally chain a detached command after the
	// plugin runs, when the descriptor demanded exit.
	PostCmd  string
	PostArgs string
	// PollInterval overrides how often the PID liveness check runs;
	// zero uses defaultPollInterval.
	PollInterval time.Duration
}

// RunResult is the propagated outcome of running the registered plugin.
type RunResult struct {
	ExitCode int
}

// RunSetupAsync is the re-entrant side of the installer driver: guarded
// against concurrent invocation, it waits for the caller PID (if any),
// loads setup.json, looks up the registered plugin, invokes it, and
// optionally chains a detached post-setup command.
func RunSetupAsync(ctx context.Context, args RunArgs) (*RunResult, error) {
	release, err := acquireGuard()
	if err != nil {
		return nil, err
	}
	defer release()

	if err := waitForPID(ctx, args.PID, args.PollInterval); err != nil {
		return nil, err
	}

	desc, err := LoadDescriptor(args.TmpDir)
	if err != nil {
		return nil, err
	}

	setup, err := plugin.Lookup()
	if err != nil {
		return nil, err
	}

	handle := &plugin.Handle{
		Arguments:   args.Arguments,
		AppPath:     args.AppPath,
		Command:     desc.Command,
		CommandArgs: desc.ArgumentsOrEmpty(),
	}

	log.Info("running setup plugin", log.String("command", desc.Command), log.String("appPath", args.AppPath))
	code, err := setup.Run(ctx, handle)
	if err != nil {
		return nil, errors.Wrap(err, "run setup plugin")
	}

	if desc.ExitRequired && args.PostCmd != "" {
		if err := spawnDetached(ctx, args.PostCmd, args.PostArgs, args.TmpDir); err != nil {
			return nil, errors.Wrap(err, "spawn post-setup command")
		}
	}

	return &RunResult{ExitCode: code}, nil
}

// spawnDetached starts cmd (split on whitespace for its arguments, per
// setup.json's own Arguments field convention) in dir without waiting.
func spawnDetached(ctx context.Context, cmd, args, dir string) error {
	parts := strings.Fields(args)
	c := exec.CommandContext(ctx, cmd, parts...)
	c.Dir = dir
	if err := c.Start(); err != nil {
		return err
	}
	log.Info("spawned post-setup command", log.String("command", cmd))
	return nil
}
