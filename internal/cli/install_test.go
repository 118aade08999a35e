package cli

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"wan24setup/internal/config"
)

func resetInstallFlags() {
	inInstall = ""
	inPath = ""
	inAllowUnsigned = false
	inVendorPki = ""
	inArguments = ""
	inPID = 0
	inCmd = ""
	inCmdArgs = ""
}

func TestRunInstallRequiresInstallFlag(t *testing.T) {
	resetInstallFlags()
	inPath = t.TempDir()
	defer resetInstallFlags()

	if err := runInstallInitial(context.Background()); err == nil {
		t.Error("install should require --install")
	}
}

func TestRunInstallRequiresPathFlag(t *testing.T) {
	resetInstallFlags()
	inInstall = filepath.Join(t.TempDir(), "package.bin")
	defer resetInstallFlags()

	if err := runInstallInitial(context.Background()); err == nil {
		t.Error("install should require --path")
	}
}

func TestVerifyInstallPackageAllowsUnsignedWithFlag(t *testing.T) {
	src := writeSampleTree(t)
	dir := t.TempDir()
	pkg := buildUnsignedPackage(t, dir, src)

	resetInstallFlags()
	inAllowUnsigned = true
	defer resetInstallFlags()

	if err := verifyInstallPackage(pkg, config.Defaults()); err != nil {
		t.Fatalf("verifyInstallPackage: %v", err)
	}
}

func TestVerifyInstallPackageRejectsUnsignedWithoutFlag(t *testing.T) {
	src := writeSampleTree(t)
	dir := t.TempDir()
	pkg := buildUnsignedPackage(t, dir, src)

	resetInstallFlags()
	defer resetInstallFlags()

	if err := verifyInstallPackage(pkg, config.Defaults()); err == nil {
		t.Error("verifyInstallPackage should reject an unsigned package without -allowUnsigned")
	}
}

func TestVerifyInstallPackageVerifiesSignedPackage(t *testing.T) {
	src := writeSampleTree(t)
	dir := t.TempDir()
	pkg, trustStorePath := buildSignedPackage(t, dir, src)

	resetInstallFlags()
	inVendorPki = trustStorePath
	defer resetInstallFlags()

	if err := verifyInstallPackage(pkg, config.Defaults()); err != nil {
		t.Fatalf("verifyInstallPackage: %v", err)
	}
}

func TestVerifyInstallPackageRequiresVendorPki(t *testing.T) {
	src := writeSampleTree(t)
	dir := t.TempDir()
	pkg, _ := buildSignedPackage(t, dir, src)

	resetInstallFlags()
	defer resetInstallFlags()

	if err := verifyInstallPackage(pkg, config.Defaults()); err == nil {
		t.Error("verifyInstallPackage should require a resolvable vendor PKI path for a signed package")
	}
}

func TestResolvePackageSourceLocalPathPassesThrough(t *testing.T) {
	path, downloaded, err := resolvePackageSource("/some/local/package.bin", t.TempDir())
	if err != nil {
		t.Fatalf("resolvePackageSource: %v", err)
	}
	if path != "/some/local/package.bin" {
		t.Errorf("expected path unchanged, got %q", path)
	}
	if downloaded != "" {
		t.Errorf("expected no downloaded cleanup path for a local source, got %q", downloaded)
	}
}

func TestRunInstallInitialStopsAtMissingDescriptor(t *testing.T) {
	src := writeSampleTree(t)
	dir := t.TempDir()
	pkg := buildUnsignedPackage(t, dir, src)

	resetInstallFlags()
	inInstall = pkg
	inPath = filepath.Join(dir, "installed")
	inAllowUnsigned = true
	defer resetInstallFlags()

	err := runInstallInitial(context.Background())
	if err == nil {
		t.Fatal("runInstallInitial should fail once it reaches the driver with no setup descriptor present")
	}
	if !strings.Contains(err.Error(), "setup.json") {
		t.Errorf("expected the missing-descriptor error to name setup.json, got: %v", err)
	}
}
