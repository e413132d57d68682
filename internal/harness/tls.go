package harness

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"net"
	"os"
	"strings"
	"time"

	"github.com/ssloxford/current-affairs/internal/config"
)

// certValidity is how long a generated certificate stays valid. Consoles
// are told to skip verification, so this only bounds browser warnings.
const certValidity = 365 * 24 * time.Hour

// TLSConfig builds the listener TLS configuration for mode. It returns nil for
// config.TLSOff.
func TLSConfig(mode, certFile, keyFile string, hosts ...string) (*tls.Config, error) {
	var (
		cert tls.Certificate
		err  error
	)
	switch strings.TrimSpace(mode) {
	case config.TLSOff:
		return nil, nil
	case config.TLSSelfSigned:
		if cert, err = selfSignedCert(hosts...); err != nil {
			return nil, fmt.Errorf("generating self-signed certificate: %w", err)
		}
	case config.TLSCustom:
		if cert, err = tls.LoadX509KeyPair(certFile, keyFile); err != nil {
			return nil, fmt.Errorf("loading TLS certificate: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported TLS mode: %q", mode)
	}
	return &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{cert}}, nil
}

// selfSignedCert creates an in-memory P-256 certificate for the loopback
// names, this machine's name and hosts.
func selfSignedCert(hosts ...string) (tls.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return tls.Certificate{}, err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return tls.Certificate{}, err
	}

	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"Current Affairs"}, CommonName: "affairs-harness"},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(certValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	tmpl.DNSNames, tmpl.IPAddresses = subjectAltNames(hosts)

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return tls.Certificate{}, err
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, nil
}

// subjectAltNames splits the loopback names, the hostname (bare and .local)
// and extra into DNS names and IPs, without duplicates.
func subjectAltNames(extra []string) (dns []string, ips []net.IP) {
	names := []string{"localhost", "127.0.0.1", "::1"}
	if host, err := os.Hostname(); err == nil && host != "" {
		host = strings.TrimSuffix(host, ".local")
		names = append(names, host, host+".local")
	}
	seen := make(map[string]bool)
	for _, n := range append(names, extra...) {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		if ip := net.ParseIP(n); ip != nil {
			ips = append(ips, ip)
		} else {
			dns = append(dns, n)
		}
	}
	return dns, ips
}
