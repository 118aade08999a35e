package cli

import (
	"strings"
	"testing"
)

func TestReporterSetByteProgressFormatsSizeAndFraction(t *testing.T) {
	r := NewReporter(false)

	r.SetByteProgress(512*1024, 1024*1024)

	if r.progress < 0.49 || r.progress > 0.51 {
		t.Errorf("progress = %f, want ~0.5", r.progress)
	}
	if !strings.Contains(r.info, "KiB") && !strings.Contains(r.info, "MiB") {
		t.Errorf("info = %q, want a human-readable byte size", r.info)
	}
	if !strings.Contains(r.info, "/") {
		t.Errorf("info = %q, want a done/total separator", r.info)
	}
}

func TestReporterSetByteProgressZeroTotal(t *testing.T) {
	r := NewReporter(false)

	r.SetByteProgress(0, 0)

	if r.progress != 0 {
		t.Errorf("progress = %f, want 0 when total is unknown", r.progress)
	}
}

func TestReporterQuietSuppressesUpdateOutput(t *testing.T) {
	r := NewReporter(true)
	r.SetByteProgress(10, 100)
	// Update writes to os.Stderr; quiet mode must return before touching
	// lastLine so Finish/PrintError's "were we mid-progress" checks stay
	// accurate for a quiet run.
	r.Update()
	if r.lastLine != 0 {
		t.Error("quiet reporter should never record a printed line length")
	}
}
