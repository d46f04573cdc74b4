package transport

import (
	"testing"
	"time"
)

func TestGenerateTLSConfigReturnsValidCert(t *testing.T) {
	validity := 2 * time.Hour
	tlsCfg, fingerprint, err := GenerateTLSConfig(validity, "")
	if err != nil {
		t.Fatalf("GenerateTLSConfig: %v", err)
	}
	if tlsCfg == nil {
		t.Fatal("expected non-nil tls.Config")
	}
	if len(fingerprint) != 64 { // SHA-256 hex = 32 bytes = 64 chars
		t.Errorf("fingerprint length: got %d, want 64", len(fingerprint))
	}
	if len(tlsCfg.Certificates) != 1 {
		t.Fatalf("expected 1 certificate, got %d", len(tlsCfg.Certificates))
	}

	leaf := tlsCfg.Certificates[0].Leaf
	if leaf == nil {
		t.Fatal("expected parsed leaf certificate")
	}
	if leaf.Subject.CommonName != "lacewing-relay" {
		t.Errorf("CN: got %q, want %q", leaf.Subject.CommonName, "lacewing-relay")
	}

	now := time.Now()
	if now.Before(leaf.NotBefore) || now.After(leaf.NotAfter) {
		t.Errorf("cert not valid at current time: NotBefore=%v NotAfter=%v", leaf.NotBefore, leaf.NotAfter)
	}
}

func TestGenerateTLSConfigHostnameSetsCNAndSAN(t *testing.T) {
	tlsCfg, _, err := GenerateTLSConfig(time.Hour, "relay.example.com")
	if err != nil {
		t.Fatalf("GenerateTLSConfig: %v", err)
	}
	leaf := tlsCfg.Certificates[0].Leaf
	if leaf.Subject.CommonName != "relay.example.com" {
		t.Errorf("CN: got %q", leaf.Subject.CommonName)
	}
	found := false
	for _, name := range leaf.DNSNames {
		if name == "relay.example.com" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected hostname in SANs, got %v", leaf.DNSNames)
	}
}

func TestGenerateTLSConfigUniqueCerts(t *testing.T) {
	_, fp1, _ := GenerateTLSConfig(time.Hour, "")
	_, fp2, _ := GenerateTLSConfig(time.Hour, "")
	if fp1 == fp2 {
		t.Error("two calls should produce different certificates")
	}
}

func TestGenerateTLSConfigSelfSigned(t *testing.T) {
	tlsCfg, _, _ := GenerateTLSConfig(time.Hour, "")
	leaf := tlsCfg.Certificates[0].Leaf
	if leaf.Issuer.CommonName != leaf.Subject.CommonName {
		t.Errorf("expected self-signed cert, issuer=%q subject=%q", leaf.Issuer.CommonName, leaf.Subject.CommonName)
	}
}
