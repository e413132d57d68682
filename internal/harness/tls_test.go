package harness

import (
	"crypto/ecdsa"
	"crypto/tls"
	"crypto/x509"
	"net"
	"slices"
	"testing"
	"time"

	"github.com/ssloxford/current-affairs/internal/config"
)

func TestSelfSignedCert(t *testing.T) {
	cert, err := selfSignedCert("bench.local", "192.168.1.50", "bench.local")
	if err != nil {
		t.Fatalf("selfSignedCert: %v", err)
	}
	if _, ok := cert.PrivateKey.(*ecdsa.PrivateKey); !ok {
		t.Fatalf("private key type = %T, want *ecdsa.PrivateKey", cert.PrivateKey)
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		t.Fatalf("parse certificate: %v", err)
	}
	if got := leaf.Subject.CommonName; got != "affairs-harness" {
		t.Fatalf("subject CN = %q, want affairs-harness", got)
	}
	if time.Until(leaf.NotAfter) < 300*24*time.Hour {
		t.Fatalf("not_after = %s, validity too short", leaf.NotAfter.Format(time.RFC3339))
	}
	for _, name := range []string{"localhost", "bench.local"} {
		if !slices.Contains(leaf.DNSNames, name) {
			t.Fatalf("DNS SANs %v missing %s", leaf.DNSNames, name)
		}
	}
	if n := countOf(leaf.DNSNames, "bench.local"); n != 1 {
		t.Fatalf("bench.local appears %d times", n)
	}
	for _, s := range []string{"127.0.0.1", "::1", "192.168.1.50"} {
		ip := net.ParseIP(s)
		if !slices.ContainsFunc(leaf.IPAddresses, ip.Equal) {
			t.Fatalf("IP SANs %v missing %s", leaf.IPAddresses, s)
		}
	}
	if err := leaf.VerifyHostname("bench.local"); err != nil {
		t.Fatalf("VerifyHostname: %v", err)
	}
}

func TestTLSConfigModes(t *testing.T) {
	cfg, err := TLSConfig(config.TLSOff, "", "")
	if err != nil || cfg != nil {
		t.Fatalf("TLSConfig(off) = (%v, %v), want (nil, nil)", cfg, err)
	}
	cfg, err = TLSConfig(config.TLSSelfSigned, "", "", "rig.local")
	if err != nil {
		t.Fatalf("TLSConfig(self-signed): %v", err)
	}
	if len(cfg.Certificates) != 1 || cfg.MinVersion != tls.VersionTLS12 {
		t.Fatalf("config = %d certs, min version %x", len(cfg.Certificates), cfg.MinVersion)
	}
	if _, err := TLSConfig(config.TLSCustom, "/nonexistent.crt", "/nonexistent.key"); err == nil {
		t.Fatal("TLSConfig(custom) with missing files succeeded")
	}
	if _, err := TLSConfig("acme", "", ""); err == nil {
		t.Fatal("TLSConfig accepted an unknown mode")
	}
}

func countOf(xs []string, s string) int {
	n := 0
	for _, x := range xs {
		if x == s {
			n++
		}
	}
	return n
}
