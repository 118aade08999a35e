package keys

import "testing"

func TestTrustStoreValidateChain(t *testing.T) {
	vendor, _, ksr := generateVendorAndRequester(t)
	spk, err := SignKSR(vendor, ksr)
	if err != nil {
		t.Fatalf("SignKSR: %v", err)
	}

	root, err := GenerateSuite()
	if err != nil {
		t.Fatalf("GenerateSuite(root): %v", err)
	}
	ts, err := NewTrustStore(root.PrimaryPriv)
	if err != nil {
		t.Fatalf("NewTrustStore: %v", err)
	}
	anchor := TrustAnchor{PrimaryPub: vendor.PrimaryPub, CounterPub: vendor.CounterPubBytes, Description: "test vendor"}
	if err := ts.AddAnchor(vendor.PrimaryKeyID(), anchor, root.PrimaryPriv); err != nil {
		t.Fatalf("AddAnchor: %v", err)
	}

	if err := ts.ValidateChain(spk, PKIDomain); err != nil {
		t.Fatalf("ValidateChain: %v", err)
	}
}

func TestTrustStoreRejectsUntrustedSigner(t *testing.T) {
	untrustedVendor, _, ksr := generateVendorAndRequester(t)
	spk, err := SignKSR(untrustedVendor, ksr)
	if err != nil {
		t.Fatalf("SignKSR: %v", err)
	}

	root, err := GenerateSuite()
	if err != nil {
		t.Fatalf("GenerateSuite(root): %v", err)
	}
	ts, err := NewTrustStore(root.PrimaryPriv)
	if err != nil {
		t.Fatalf("NewTrustStore: %v", err)
	}
	// Deliberately do not add untrustedVendor as an anchor.

	if err := ts.ValidateChain(spk, PKIDomain); err == nil {
		t.Error("ValidateChain should fail when the signer is not a trust anchor")
	}
}

func TestTrustStoreEncodeDecodeRoundTrip(t *testing.T) {
	root, err := GenerateSuite()
	if err != nil {
		t.Fatalf("GenerateSuite(root): %v", err)
	}
	ts, err := NewTrustStore(root.PrimaryPriv)
	if err != nil {
		t.Fatalf("NewTrustStore: %v", err)
	}
	vendor, err := GenerateSuite()
	if err != nil {
		t.Fatalf("GenerateSuite(vendor): %v", err)
	}
	anchor := TrustAnchor{PrimaryPub: vendor.PrimaryPub, CounterPub: vendor.CounterPubBytes, Description: "test vendor"}
	if err := ts.AddAnchor(vendor.PrimaryKeyID(), anchor, root.PrimaryPriv); err != nil {
		t.Fatalf("AddAnchor: %v", err)
	}

	encoded, err := ts.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := DecodeTrustStore(encoded)
	if err != nil {
		t.Fatalf("DecodeTrustStore: %v", err)
	}
	if err := got.VerifyStoreSignature(); err != nil {
		t.Fatalf("VerifyStoreSignature after round trip: %v", err)
	}
	if len(got.Anchors) != 1 {
		t.Fatalf("anchor count = %d, want 1", len(got.Anchors))
	}
}

func TestTrustStoreDetectsTamperedAnchors(t *testing.T) {
	root, err := GenerateSuite()
	if err != nil {
		t.Fatalf("GenerateSuite(root): %v", err)
	}
	ts, err := NewTrustStore(root.PrimaryPriv)
	if err != nil {
		t.Fatalf("NewTrustStore: %v", err)
	}
	vendor, err := GenerateSuite()
	if err != nil {
		t.Fatalf("GenerateSuite(vendor): %v", err)
	}
	anchor := TrustAnchor{PrimaryPub: vendor.PrimaryPub, CounterPub: vendor.CounterPubBytes, Description: "test vendor"}
	if err := ts.AddAnchor(vendor.PrimaryKeyID(), anchor, root.PrimaryPriv); err != nil {
		t.Fatalf("AddAnchor: %v", err)
	}

	// Mutate an anchor directly, bypassing AddAnchor's resign step.
	tampered := ts.Anchors[vendor.PrimaryKeyID()]
	tampered.Description = "not the original vendor"
	ts.Anchors[vendor.PrimaryKeyID()] = tampered

	if err := ts.VerifyStoreSignature(); err == nil {
		t.Error("VerifyStoreSignature should fail once an anchor is tampered with")
	}
}
