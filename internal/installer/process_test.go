package installer

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestWaitForPIDReturnsImmediatelyForNegativePID(t *testing.T) {
	if err := waitForPID(context.Background(), -1, time.Millisecond); err != nil {
		t.Fatalf("waitForPID(-1): %v", err)
	}
}

func TestIsProcessAliveForCurrentProcess(t *testing.T) {
	if !isProcessAlive(os.Getpid()) {
		t.Error("the current process should be reported alive")
	}
}

func TestIsProcessAliveForBogusPID(t *testing.T) {
	// A PID astronomically unlikely to be in use.
	if isProcessAlive(1 << 30) {
		t.Error("an implausible PID should be reported not alive")
	}
}

func TestWaitForPIDHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := waitForPID(ctx, os.Getpid(), 10*time.Millisecond)
	if err == nil {
		t.Error("waitForPID should fail once the context is cancelled while the PID is still alive")
	}
}
