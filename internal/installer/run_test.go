package installer

import (
	"context"
	"sync"
	"testing"

	"wan24setup/internal/plugin"
)

// fakeSetup lets tests control the exit code RunSetupAsync propagates
// without needing a real install to happen.
type fakeSetup struct {
	exitCode    int
	err         error
	gotHandle   *plugin.Handle
	mu          sync.Mutex
	invokeCount int
}

func (f *fakeSetup) Run(ctx context.Context, h *plugin.Handle) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invokeCount++
	f.gotHandle = h
	return f.exitCode, f.err
}

var (
	registerOnce sync.Once
	sharedSetup  = &fakeSetup{}
)

// registerSharedSetup registers sharedSetup exactly once for the whole
// installer test binary — plugin.Register panics on a second call, and
// there's exactly one implementor per real binary too.
func registerSharedSetup(t *testing.T) *fakeSetup {
	t.Helper()
	registerOnce.Do(func() {
		plugin.Register("installer-test-setup", sharedSetup)
	})
	return sharedSetup
}

func writeDescriptor(t *testing.T, dir string, d *Descriptor) {
	t.Helper()
	if err := d.Save(dir); err != nil {
		t.Fatalf("Descriptor.Save: %v", err)
	}
}

func TestRunSetupAsyncInvokesRegisteredPlugin(t *testing.T) {
	setup := registerSharedSetup(t)
	setup.mu.Lock()
	setup.exitCode = 3
	setup.err = nil
	setup.mu.Unlock()

	dir := t.TempDir()
	writeDescriptor(t, dir, &Descriptor{Command: "do-the-thing"})

	result, err := RunSetupAsync(context.Background(), RunArgs{
		PID:       -1,
		TmpDir:    dir,
		AppPath:   "/opt/target",
		Arguments: "--flag",
	})
	if err != nil {
		t.Fatalf("RunSetupAsync: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}

	setup.mu.Lock()
	defer setup.mu.Unlock()
	if setup.gotHandle == nil || setup.gotHandle.Command != "do-the-thing" || setup.gotHandle.AppPath != "/opt/target" {
		t.Errorf("plugin invoked with unexpected handle: %+v", setup.gotHandle)
	}
}

func TestRunSetupAsyncRejectsReentry(t *testing.T) {
	release, err := acquireGuard()
	if err != nil {
		t.Fatalf("acquireGuard: %v", err)
	}
	defer release()

	dir := t.TempDir()
	writeDescriptor(t, dir, &Descriptor{Command: "x"})

	if _, err := RunSetupAsync(context.Background(), RunArgs{PID: -1, TmpDir: dir}); err == nil {
		t.Error("RunSetupAsync should fail with AlreadyRunning while a guard is held")
	}
}

func TestRunSetupAsyncMissingDescriptorFails(t *testing.T) {
	if _, err := RunSetupAsync(context.Background(), RunArgs{PID: -1, TmpDir: t.TempDir()}); err == nil {
		t.Error("RunSetupAsync should fail when setup.json is missing")
	}
}
