package installer

import (
	"testing"
)

func TestDescriptorSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	args := "--quiet"
	d := &Descriptor{
		Command:      "setup-app",
		Arguments:    &args,
		ExitRequired: true,
		HideWindow:   true,
	}
	if err := d.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := LoadDescriptor(dir)
	if err != nil {
		t.Fatalf("LoadDescriptor: %v", err)
	}
	if got.Command != d.Command || got.ArgumentsOrEmpty() != args || !got.ExitRequired || !got.HideWindow {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestLoadDescriptorRequiresCommand(t *testing.T) {
	dir := t.TempDir()
	d := &Descriptor{}
	if err := d.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := LoadDescriptor(dir); err == nil {
		t.Error("LoadDescriptor should reject a descriptor with an empty Command")
	}
}

func TestLoadDescriptorMissingFileFails(t *testing.T) {
	if _, err := LoadDescriptor(t.TempDir()); err == nil {
		t.Error("LoadDescriptor should fail when setup.json is absent")
	}
}

func TestArgumentsOrEmptyHandlesNil(t *testing.T) {
	d := &Descriptor{Command: "x"}
	if d.ArgumentsOrEmpty() != "" {
		t.Error("ArgumentsOrEmpty should return \"\" for a nil Arguments field")
	}
}
