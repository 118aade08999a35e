package plugin

import (
	"context"
	"testing"
)

type fakeSetup struct {
	exitCode int
	err      error
	ran      bool
	lastArgs *Handle
}

func (f *fakeSetup) Run(ctx context.Context, h *Handle) (int, error) {
	f.ran = true
	f.lastArgs = h
	return f.exitCode, f.err
}

func TestRegisterAndLookup(t *testing.T) {
	t.Cleanup(reset)

	s := &fakeSetup{exitCode: 0}
	Register("test-setup", s)

	got, err := Lookup()
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	h := &Handle{AppPath: "/opt/app"}
	code, err := got.Run(context.Background(), h)
	if err != nil || code != 0 {
		t.Fatalf("Run() = %d, %v", code, err)
	}
	if !s.ran || s.lastArgs.AppPath != "/opt/app" {
		t.Error("registered implementor was not invoked with the given handle")
	}
}

func TestLookupWithoutRegistrationFails(t *testing.T) {
	t.Cleanup(reset)

	if _, err := Lookup(); err == nil {
		t.Error("Lookup should fail when nothing has been registered")
	}
}

func TestRegisterTwicePanics(t *testing.T) {
	t.Cleanup(reset)

	Register("first", &fakeSetup{})
	defer func() {
		if recover() == nil {
			t.Error("second Register call should panic")
		}
	}()
	Register("second", &fakeSetup{})
}
