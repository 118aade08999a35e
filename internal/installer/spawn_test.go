package installer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeScript writes an executable shell script to dir/name. Tests use
// this as a stand-in installer executable, since spawning the real test
// binary isn't meaningful here — SpawnChild doesn't interpret the
// child's output, only captures and relays it.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	full := "#!/bin/sh\n" + body
	if err := os.WriteFile(path, []byte(full), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestSpawnChildWaitsAndCapturesOutput(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "fake-installer.sh", "echo hello-stdout\necho hello-stderr >&2\nexit 7\n")

	result, err := SpawnChild(context.Background(), SpawnOptions{
		Executable: script,
		TmpDir:     dir,
		CallerPID:  -1,
		AppPath:    "/opt/target",
	})
	if err != nil {
		t.Fatalf("SpawnChild: %v", err)
	}
	if result.RequireExit {
		t.Error("RequireExit should be false when waiting for the child")
	}
	if result.ExitCode != 7 {
		t.Errorf("ExitCode = %d, want 7", result.ExitCode)
	}
	if !strings.Contains(result.Stdout, "hello-stdout") {
		t.Errorf("Stdout = %q", result.Stdout)
	}
	if !strings.Contains(result.Stderr, "hello-stderr") {
		t.Errorf("Stderr = %q", result.Stderr)
	}
}

func TestSpawnChildExitRequiredReturnsImmediately(t *testing.T) {
	dir := t.TempDir()
	script := writeScript(t, dir, "fake-installer.sh", "sleep 0.2\nexit 0\n")

	result, err := SpawnChild(context.Background(), SpawnOptions{
		Executable:   script,
		TmpDir:       dir,
		CallerPID:    os.Getpid(),
		AppPath:      "/opt/target",
		ExitRequired: true,
	})
	if err != nil {
		t.Fatalf("SpawnChild: %v", err)
	}
	if !result.RequireExit {
		t.Error("RequireExit should be true when the descriptor demands exit")
	}
}
