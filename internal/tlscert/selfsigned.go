package tlscert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"slices"
	"time"
)

const (
	selfSignedValidity = 365 * 24 * time.Hour
	// selfSignedRenewBefore regenerates pairs close to expiry.
	selfSignedRenewBefore = 7 * 24 * time.Hour
	selfSignedCertName    = "cms-graphql.crt"
	selfSignedKeyName     = "cms-graphql.key"
)

var defaultSelfSignedHosts = []string{"localhost", "127.0.0.1", "::1"}

type selfSignedManager struct {
	certPath string
	cert     tls.Certificate
}

func newSelfSignedManager(cfg Config, logger *slog.Logger) (*selfSignedManager, error) {
	hosts := cfg.SelfSignedHosts
	if len(hosts) == 0 {
		hosts = defaultSelfSignedHosts
	}
	dir := cfg.SelfSignedCertDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create certificate directory: %w", err)
	}

	certPath := filepath.Join(dir, selfSignedCertName)
	keyPath := filepath.Join(dir, selfSignedKeyName)

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil || !reusable(cert, hosts, time.Now()) {
		logger.Info("generating self-signed certificate",
			slog.String("cert_path", certPath),
			slog.Any("hosts", hosts))
		if err := writeSelfSigned(certPath, keyPath, hosts, time.Now()); err != nil {
			return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
		}
		if cert, err = tls.LoadX509KeyPair(certPath, keyPath); err != nil {
			return nil, fmt.Errorf("failed to load self-signed certificate: %w", err)
		}
		logger.Warn("self-signed certificate generated - not suitable for production",
			slog.String("cert_path", certPath))
	} else {
		logger.Info("using existing self-signed certificate", slog.String("cert_path", certPath))
	}

	return &selfSignedManager{certPath: certPath, cert: cert}, nil
}

func (m *selfSignedManager) TLSConfig() (*tls.Config, error) {
	return &tls.Config{
		MinVersion:   MinTLSVersion,
		Certificates: []tls.Certificate{m.cert},
	}, nil
}

func (m *selfSignedManager) Description() string {
	return fmt.Sprintf("self-signed (cert=%s) - DEV ONLY", m.certPath)
}

func (m *selfSignedManager) Shutdown() error {
	return nil
}

// reusable reports whether a stored pair is valid for a while longer and
// covers exactly the configured hosts.
func reusable(cert tls.Certificate, hosts []string, now time.Time) bool {
	if len(cert.Certificate) == 0 {
		return false
	}
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return false
	}
	if now.Before(leaf.NotBefore) || now.Add(selfSignedRenewBefore).After(leaf.NotAfter) {
		return false
	}

	dnsNames, ips := splitHosts(hosts)
	certIPs := make([]string, 0, len(leaf.IPAddresses))
	for _, ip := range leaf.IPAddresses {
		certIPs = append(certIPs, ip.String())
	}
	return sameSet(dnsNames, leaf.DNSNames) && sameSet(ips, certIPs)
}

func writeSelfSigned(certPath, keyPath string, hosts []string, now time.Time) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return err
	}

	dnsNames, ips := splitHosts(hosts)
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"cms-graphql (self-signed)"},
			CommonName:   hosts[0],
		},
		NotBefore:             now.Add(-5 * time.Minute),
		NotAfter:              now.Add(selfSignedValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
	}
	for _, ip := range ips {
		template.IPAddresses = append(template.IPAddresses, net.ParseIP(ip))
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return err
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return err
	}

	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644); err != nil {
		return err
	}
	return os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600)
}

// splitHosts separates DNS names from IP literals. IPs are normalized.
func splitHosts(hosts []string) (dnsNames, ips []string) {
	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			ips = append(ips, ip.String())
			continue
		}
		dnsNames = append(dnsNames, host)
	}
	return dnsNames, ips
}

func sameSet(a, b []string) bool {
	a = slices.Compact(slices.Sorted(slices.Values(a)))
	b = slices.Compact(slices.Sorted(slices.Values(b)))
	return slices.Equal(a, b)
}
