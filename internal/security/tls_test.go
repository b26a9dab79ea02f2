package security

import (
	"crypto/x509"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadOrGenerateTLSCreatesAndReuses(t *testing.T) {
	dir := t.TempDir()

	cfg, paths, err := LoadOrGenerateTLS(dir)
	if err != nil {
		t.Fatalf("LoadOrGenerateTLS: %v", err)
	}
	if len(cfg.Certificates) != 1 {
		t.Fatalf("certificates: got %d, want 1", len(cfg.Certificates))
	}

	first, err := os.ReadFile(paths.CertPath)
	if err != nil {
		t.Fatalf("read cert: %v", err)
	}

	// Second call must load the same certificate, not mint a new one.
	_, paths2, err := LoadOrGenerateTLS(dir)
	if err != nil {
		t.Fatalf("second LoadOrGenerateTLS: %v", err)
	}
	second, err := os.ReadFile(paths2.CertPath)
	if err != nil {
		t.Fatalf("read cert: %v", err)
	}
	if string(first) != string(second) {
		t.Fatal("certificate regenerated despite existing files")
	}
}

func TestGeneratedCertificateProperties(t *testing.T) {
	cfg, _, err := LoadOrGenerateTLS(t.TempDir())
	if err != nil {
		t.Fatalf("LoadOrGenerateTLS: %v", err)
	}

	leaf, err := x509.ParseCertificate(cfg.Certificates[0].Certificate[0])
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}

	if leaf.SignatureAlgorithm != x509.SHA256WithRSA {
		t.Errorf("signature algorithm: got %v, want %v", leaf.SignatureAlgorithm, x509.SHA256WithRSA)
	}
	validity := leaf.NotAfter.Sub(leaf.NotBefore)
	if validity < 365*24*time.Hour {
		t.Errorf("validity: got %v, want at least one year", validity)
	}
	var hasServerAuth bool
	for _, eku := range leaf.ExtKeyUsage {
		if eku == x509.ExtKeyUsageServerAuth {
			hasServerAuth = true
		}
	}
	if !hasServerAuth {
		t.Error("certificate lacks the server-auth extended key usage")
	}
	found := false
	for _, name := range leaf.DNSNames {
		if name == "localhost" {
			found = true
		}
	}
	if !found {
		t.Errorf("SANs %v missing localhost", leaf.DNSNames)
	}
}

func TestClientTLSConfigModes(t *testing.T) {
	lax := ClientTLSConfig(false, "")
	if !lax.InsecureSkipVerify {
		t.Error("default mode should skip verification for self-signed hosts")
	}

	strict := ClientTLSConfig(true, "host.lan")
	if strict.InsecureSkipVerify {
		t.Error("strict mode must verify the peer")
	}
	if strict.ServerName != "host.lan" {
		t.Errorf("server name: got %q, want %q", strict.ServerName, "host.lan")
	}
}

func TestLoadPKCS12MissingFile(t *testing.T) {
	_, err := LoadPKCS12(filepath.Join(t.TempDir(), "nope.p12"), "")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadPKCS12Garbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.p12")
	if err := os.WriteFile(path, []byte("not pkcs12 at all"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadPKCS12(path, "password"); err == nil {
		t.Fatal("expected error for malformed PKCS#12 data")
	}
}
