package tlscert

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// fileManager serves an operator-supplied pair and reloads it when either
// file's modification time changes, so certificates can rotate in place.
type fileManager struct {
	certFile string
	keyFile  string
	logger   *slog.Logger

	mu      sync.Mutex
	cert    *tls.Certificate
	certMod time.Time
	keyMod  time.Time
	stat    func(string) (os.FileInfo, error)
}

func newFileManager(cfg Config, logger *slog.Logger) (*fileManager, error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, errors.New("tls_cert_file and tls_key_file are required when tls_mode=file")
	}
	for _, path := range []string{cfg.CertFile, cfg.KeyFile} {
		if err := checkRegularFile(path); err != nil {
			return nil, err
		}
	}
	if err := checkKeyFilePermissions(cfg.KeyFile); err != nil {
		return nil, err
	}

	m := &fileManager{
		certFile: cfg.CertFile,
		keyFile:  cfg.KeyFile,
		logger:   logger,
		stat:     os.Stat,
	}
	if _, err := m.certificate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *fileManager) TLSConfig() (*tls.Config, error) {
	return &tls.Config{
		MinVersion: MinTLSVersion,
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			return m.certificate()
		},
	}, nil
}

// certificate returns the cached pair, reloading it when the files changed.
// A failed reload keeps serving the previous pair.
func (m *fileManager) certificate() (*tls.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	certInfo, certErr := m.stat(m.certFile)
	keyInfo, keyErr := m.stat(m.keyFile)
	if err := errors.Join(certErr, keyErr); err != nil {
		if m.cert != nil {
			m.logger.Warn("certificate files not accessible, keeping loaded certificate", slog.String("error", err.Error()))
			return m.cert, nil
		}
		return nil, fmt.Errorf("certificate files not accessible: %w", err)
	}
	if m.cert != nil && certInfo.ModTime().Equal(m.certMod) && keyInfo.ModTime().Equal(m.keyMod) {
		return m.cert, nil
	}

	cert, err := tls.LoadX509KeyPair(m.certFile, m.keyFile)
	if err != nil {
		if m.cert != nil {
			m.logger.Error("failed to reload certificate, keeping loaded certificate",
				slog.String("cert_file", m.certFile),
				slog.String("error", err.Error()))
			return m.cert, nil
		}
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	if m.cert != nil {
		m.logger.Info("certificate reloaded", slog.String("cert_file", m.certFile))
	}
	m.cert = &cert
	m.certMod = certInfo.ModTime()
	m.keyMod = keyInfo.ModTime()
	return m.cert, nil
}

func (m *fileManager) Description() string {
	return fmt.Sprintf("file (cert=%s, key=%s)", m.certFile, m.keyFile)
}

func (m *fileManager) Shutdown() error {
	return nil
}

func checkRegularFile(path string) error {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return fmt.Errorf("TLS file %s not accessible: %w", path, err)
	case info.IsDir():
		return fmt.Errorf("TLS file %s is a directory", path)
	case info.Size() == 0:
		return fmt.Errorf("TLS file %s is empty", path)
	}
	return nil
}

// checkKeyFilePermissions rejects keys readable by group or others.
func checkKeyFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return fmt.Errorf("key file %s has insecure permissions %o (use 0600 or 0400)", path, perm)
	}
	return nil
}
