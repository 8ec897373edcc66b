// Package tlscert provides server certificates for HTTPS: operator-supplied
// files reloaded on change, or a generated self-signed pair for development.
package tlscert

import (
	"crypto/tls"
	"fmt"
	"log/slog"
)

// CertMode selects where certificates come from.
type CertMode string

const (
	CertModeFile       CertMode = "file"
	CertModeSelfSigned CertMode = "selfsigned"
)

// MinTLSVersion is the minimum supported TLS version for the server.
const MinTLSVersion = tls.VersionTLS13

// Config holds TLS certificate configuration.
type Config struct {
	Mode CertMode

	CertFile string
	KeyFile  string

	// SelfSignedCertDir stores the generated pair between restarts.
	SelfSignedCertDir string
	SelfSignedHosts   []string
}

// Manager provides the TLS settings for the HTTP server.
type Manager interface {
	TLSConfig() (*tls.Config, error)
	// Description names the certificate source for startup logs.
	Description() string
	Shutdown() error
}

// NewManager creates a certificate manager for cfg.Mode.
func NewManager(cfg Config, logger *slog.Logger) (Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Mode {
	case CertModeFile:
		return newFileManager(cfg, logger)
	case CertModeSelfSigned:
		return newSelfSignedManager(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported TLS certificate mode %q (valid modes: file, selfsigned)", cfg.Mode)
	}
}
