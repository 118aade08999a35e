package cli

import (
	"os"
	"path/filepath"
	"testing"

	wan24crypto "wan24setup/internal/crypto"
	"wan24setup/internal/keys"
	"wan24setup/internal/stream"
)

// writeVendorSuite generates a vendor suite, saves it encrypted under
// password at path, and returns it for further use (anchoring a trust
// store, etc).
func writeVendorSuite(t *testing.T, path, password string) *keys.Suite {
	t.Helper()
	vendor, err := keys.GenerateSuite()
	if err != nil {
		t.Fatalf("GenerateSuite: %v", err)
	}
	finalized, _, err := wan24crypto.DeriveSuiteKey([]byte(password))
	if err != nil {
		t.Fatalf("DeriveSuiteKey: %v", err)
	}
	if err := keys.SaveEncrypted(path, vendor, finalized); err != nil {
		t.Fatalf("SaveEncrypted: %v", err)
	}
	return vendor
}

func writeRequesterKSR(t *testing.T, path string) (*keys.Suite, string) {
	t.Helper()
	requester, err := keys.GenerateSuite()
	if err != nil {
		t.Fatalf("GenerateSuite: %v", err)
	}
	attrs := map[string]string{
		keys.AttrPKIDomain:  keys.PKIDomain,
		keys.AttrOwnerEmail: "dev@example.com",
		keys.AttrUsages:     "packageSigning",
		keys.AttrPrimaryID:  requester.PrimaryKeyID(),
		keys.AttrCounterID:  requester.CounterKeyID(),
	}
	ksr, err := keys.NewKSR(requester.PrimaryPriv, requester.CounterPubBytes, attrs)
	if err != nil {
		t.Fatalf("NewKSR: %v", err)
	}

	f, err := createFile(path)
	if err != nil {
		t.Fatalf("createFile: %v", err)
	}
	if err := ksr.Serialize(stream.NewWriter(f)); err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	f.Close()
	return requester, path
}

func resetSignKeyFlags() {
	skVendorPath = ""
	skVendorPwdEnv = ""
	skKsrPath = ""
	skOutPath = ""
	skTPM = false
}

func TestRunSignKeyProducesSignedPublicKey(t *testing.T) {
	dir := t.TempDir()
	vendorPath := filepath.Join(dir, "vendor.key")
	vendor := writeVendorSuite(t, vendorPath, "vendor secret passphrase")
	requester, ksrPath := writeRequesterKSR(t, filepath.Join(dir, "requester.ksr"))
	outPath := filepath.Join(dir, "requester.signed")

	t.Setenv("SK_TEST_PWD", "vendor secret passphrase")
	resetSignKeyFlags()
	skVendorPath = vendorPath
	skVendorPwdEnv = "SK_TEST_PWD"
	skKsrPath = ksrPath
	skOutPath = outPath
	defer resetSignKeyFlags()

	if err := signKeyCmd.RunE(signKeyCmd, nil); err != nil {
		t.Fatalf("runSignKey: %v", err)
	}

	f, err := os.Open(outPath)
	if err != nil {
		t.Fatalf("open signed output: %v", err)
	}
	defer f.Close()
	spk, err := keys.DeserializeSignedPublicKey(stream.NewReader(f))
	if err != nil {
		t.Fatalf("DeserializeSignedPublicKey: %v", err)
	}
	if err := spk.VerifyAgainst(&vendor.PrimaryPriv.PublicKey, vendor.CounterPubBytes); err != nil {
		t.Fatalf("VerifyAgainst: %v", err)
	}

	if err := keys.FinalizeSuite(requester, spk); err != nil {
		t.Fatalf("FinalizeSuite on the signed output should succeed: %v", err)
	}
}

func TestRunSignKeyFailsWithWrongVendorPassword(t *testing.T) {
	dir := t.TempDir()
	vendorPath := filepath.Join(dir, "vendor.key")
	writeVendorSuite(t, vendorPath, "vendor secret passphrase")
	_, ksrPath := writeRequesterKSR(t, filepath.Join(dir, "requester.ksr"))

	t.Setenv("SK_TEST_PWD", "the wrong password entirely")
	resetSignKeyFlags()
	skVendorPath = vendorPath
	skVendorPwdEnv = "SK_TEST_PWD"
	skKsrPath = ksrPath
	skOutPath = filepath.Join(dir, "requester.signed")
	defer resetSignKeyFlags()

	if err := signKeyCmd.RunE(signKeyCmd, nil); err == nil {
		t.Error("runSignKey should fail when the vendor suite password is wrong")
	}
}

func TestRunSignKeyFailsWithoutVendorPki(t *testing.T) {
	dir := t.TempDir()
	_, ksrPath := writeRequesterKSR(t, filepath.Join(dir, "requester.ksr"))

	resetSignKeyFlags()
	skKsrPath = ksrPath
	skOutPath = filepath.Join(dir, "requester.signed")
	defer resetSignKeyFlags()

	if err := signKeyCmd.RunE(signKeyCmd, nil); err == nil {
		t.Error("runSignKey should fail when no vendor PKI path is resolvable")
	}
}
