package keys

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	wan24crypto "wan24setup/internal/crypto"
)

func testFinalizedPassword(t *testing.T) []byte {
	t.Helper()
	key, _, err := wan24crypto.DeriveSuiteKey([]byte("correct horse battery staple"))
	if err != nil {
		t.Fatalf("DeriveSuiteKey: %v", err)
	}
	return key
}

func TestSuiteEncodeDecodeRoundTrip(t *testing.T) {
	suite, err := GenerateSuite()
	if err != nil {
		t.Fatalf("GenerateSuite: %v", err)
	}

	encoded, err := suite.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := DecodeSuite(encoded)
	if err != nil {
		t.Fatalf("DecodeSuite: %v", err)
	}
	if got.PrimaryKeyID() != suite.PrimaryKeyID() {
		t.Error("primary key ID mismatch after round trip")
	}
	if got.CounterKeyID() != suite.CounterKeyID() {
		t.Error("counter key ID mismatch after round trip")
	}
	if !bytes.Equal(got.CounterPrivBytes, suite.CounterPrivBytes) {
		t.Error("counter private key mismatch after round trip")
	}
}

func TestSuiteSaveLoadEncrypted(t *testing.T) {
	suite, err := GenerateSuite()
	if err != nil {
		t.Fatalf("GenerateSuite: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "private.key")
	password := testFinalizedPassword(t)

	if err := SaveEncrypted(path, suite, password); err != nil {
		t.Fatalf("SaveEncrypted: %v", err)
	}

	loaded, err := LoadEncrypted(path, password)
	if err != nil {
		t.Fatalf("LoadEncrypted: %v", err)
	}
	if loaded.PrimaryKeyID() != suite.PrimaryKeyID() {
		t.Error("primary key ID mismatch after encrypted round trip")
	}
}

func TestSuiteLoadEncryptedWrongPasswordFails(t *testing.T) {
	suite, err := GenerateSuite()
	if err != nil {
		t.Fatalf("GenerateSuite: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "private.key")
	password := testFinalizedPassword(t)
	if err := SaveEncrypted(path, suite, password); err != nil {
		t.Fatalf("SaveEncrypted: %v", err)
	}

	wrongPassword, _, err := wan24crypto.DeriveSuiteKey([]byte("a different password"))
	if err != nil {
		t.Fatalf("DeriveSuiteKey: %v", err)
	}
	if _, err := LoadEncrypted(path, wrongPassword); err == nil {
		t.Error("LoadEncrypted should fail with the wrong password")
	}
}

func TestFinalizeSuiteMergesSignedPublicKey(t *testing.T) {
	vendor, requester, ksr := generateVendorAndRequester(t)
	spk, err := SignKSR(vendor, ksr)
	if err != nil {
		t.Fatalf("SignKSR: %v", err)
	}

	if requester.SignedPublic != nil {
		t.Fatal("requester suite should start with no signed public key")
	}
	if err := FinalizeSuite(requester, spk); err != nil {
		t.Fatalf("FinalizeSuite: %v", err)
	}
	if requester.SignedPublic != spk {
		t.Error("FinalizeSuite should attach the signed public key to the suite")
	}

	if _, err := SignPackage(requester, []byte("payload")); err != nil {
		t.Errorf("SignPackage should succeed once the suite carries a signed public key: %v", err)
	}
}

func TestFinalizeSuiteRejectsMismatchedPrimaryKey(t *testing.T) {
	vendor, _, ksr := generateVendorAndRequester(t)
	spk, err := SignKSR(vendor, ksr)
	if err != nil {
		t.Fatalf("SignKSR: %v", err)
	}

	other, err := GenerateSuite()
	if err != nil {
		t.Fatalf("GenerateSuite: %v", err)
	}
	if err := FinalizeSuite(other, spk); err == nil {
		t.Error("FinalizeSuite should reject a signed public key issued for a different suite")
	}
}

func TestFinalizeSuiteRejectsMalformedSignatures(t *testing.T) {
	vendor, requester, ksr := generateVendorAndRequester(t)
	spk, err := SignKSR(vendor, ksr)
	if err != nil {
		t.Fatalf("SignKSR: %v", err)
	}
	spk.Signatures = spk.Signatures[:1]

	if err := FinalizeSuite(requester, spk); err == nil {
		t.Error("FinalizeSuite should reject a signed public key without exactly two signatures")
	}
}

func TestSuiteLoadEncryptedTamperedFileFails(t *testing.T) {
	suite, err := GenerateSuite()
	if err != nil {
		t.Fatalf("GenerateSuite: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "private.key")
	password := testFinalizedPassword(t)
	if err := SaveEncrypted(path, suite, password); err != nil {
		t.Fatalf("SaveEncrypted: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	data[len(data)-1] ^= 0xFF
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := LoadEncrypted(path, password); err == nil {
		t.Error("LoadEncrypted should fail on a tampered file")
	}
}
