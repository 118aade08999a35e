package installer

import (
	"context"
	"os"
	"testing"
)

func TestDriveDeletesTmpDirOnSuccess(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, &Descriptor{Command: "x"})
	script := writeScript(t, dir, "fake-installer.sh", "exit 0\n")

	result, err := Drive(context.Background(), DriveOptions{
		Executable: script,
		TmpDir:     dir,
		AppPath:    "/opt/target",
	})
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("ExitCode = %d, want 0", result.ExitCode)
	}
	if _, statErr := os.Stat(dir); !os.IsNotExist(statErr) {
		t.Error("temp dir should have been removed after a successful install")
	}
}

func TestDrivePreservesTmpDirOnFailure(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, &Descriptor{Command: "x"})
	script := writeScript(t, dir, "fake-installer.sh", "exit 5\n")

	result, err := Drive(context.Background(), DriveOptions{
		Executable: script,
		TmpDir:     dir,
		AppPath:    "/opt/target",
	})
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if result.ExitCode != 5 {
		t.Fatalf("ExitCode = %d, want 5", result.ExitCode)
	}
	if _, statErr := os.Stat(dir); statErr != nil {
		t.Error("temp dir should be preserved after a failed install")
	}
}

func TestDriveExitRequiredReturnsImmediatelyAndLeavesTmpDir(t *testing.T) {
	dir := t.TempDir()
	args := ""
	writeDescriptor(t, dir, &Descriptor{Command: "x", ExitRequired: true, Arguments: &args})
	script := writeScript(t, dir, "fake-installer.sh", "sleep 0.2\nexit 0\n")

	result, err := Drive(context.Background(), DriveOptions{
		Executable: script,
		TmpDir:     dir,
		AppPath:    "/opt/target",
	})
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if !result.RequireExit {
		t.Error("RequireExit should be true when the descriptor demands exit")
	}
	if _, statErr := os.Stat(dir); statErr != nil {
		t.Error("temp dir must survive the RequireExit branch for the re-entrant child")
	}
}

func TestDriveSkipExitOverridesDescriptor(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, &Descriptor{Command: "x", ExitRequired: true})
	script := writeScript(t, dir, "fake-installer.sh", "exit 0\n")

	result, err := Drive(context.Background(), DriveOptions{
		Executable: script,
		TmpDir:     dir,
		AppPath:    "/opt/target",
		SkipExit:   true,
	})
	if err != nil {
		t.Fatalf("Drive: %v", err)
	}
	if result.RequireExit {
		t.Error("SkipExit should force the wait branch even when ExitRequired is set")
	}
}
