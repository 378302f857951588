// Package tlsutil builds tls.Config values from security settings.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/c360/flowcanvas/errors"
	"github.com/c360/flowcanvas/pkg/security"
)

// LoadServerTLSConfig creates the gateway's tls.Config. It returns nil
// when TLS is disabled.
func LoadServerTLSConfig(cfg security.ServerTLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, errors.WrapFatal(err, "tlsutil", "LoadServerTLSConfig", "load certificate")
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   parseTLSVersion(cfg.MinVersion),
	}
	if cfg.MTLS.Enabled {
		if err := applyMTLSConfig(tlsConfig, cfg.MTLS); err != nil {
			return nil, err
		}
	}
	return tlsConfig, nil
}

func applyMTLSConfig(tlsConfig *tls.Config, mtlsCfg security.ServerMTLSConfig) error {
	clientCAs, err := appendCAFiles(x509.NewCertPool(), mtlsCfg.ClientCAFiles)
	if err != nil {
		return errors.WrapFatal(err, "tlsutil", "applyMTLSConfig", "load client CAs")
	}

	tlsConfig.ClientCAs = clientCAs
	if mtlsCfg.RequireClientCert {
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	} else {
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	}

	if len(mtlsCfg.AllowedClientCNs) > 0 {
		allowed := mtlsCfg.AllowedClientCNs
		tlsConfig.VerifyPeerCertificate = func(_ [][]byte, verifiedChains [][]*x509.Certificate) error {
			// Optional client certs arrive here with no chains.
			if len(verifiedChains) == 0 && !mtlsCfg.RequireClientCert {
				return nil
			}
			return verifyAllowedClientCN(verifiedChains, allowed)
		}
	}
	return nil
}

func verifyAllowedClientCN(chains [][]*x509.Certificate, allowedCNs []string) error {
	if len(chains) == 0 || len(chains[0]) == 0 {
		return fmt.Errorf("no verified certificate chains")
	}

	leaf := chains[0][0]
	for _, cn := range allowedCNs {
		if leaf.Subject.CommonName == cn {
			return nil
		}
	}
	return fmt.Errorf("client certificate CN %q not in allowed list", leaf.Subject.CommonName)
}

// LoadClientTLSConfig creates the engine client's tls.Config. The system
// pool is the base; CAFiles extend it.
func LoadClientTLSConfig(cfg security.ClientTLSConfig) (*tls.Config, error) {
	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		rootCAs = x509.NewCertPool()
	}
	rootCAs, err = appendCAFiles(rootCAs, cfg.CAFiles)
	if err != nil {
		return nil, errors.WrapFatal(err, "tlsutil", "LoadClientTLSConfig", "load CAs")
	}

	tlsConfig := &tls.Config{
		RootCAs:            rootCAs,
		MinVersion:         parseTLSVersion(cfg.MinVersion),
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // operator opt-in
	}

	if cfg.MTLS.Enabled {
		cert, err := tls.LoadX509KeyPair(cfg.MTLS.CertFile, cfg.MTLS.KeyFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientTLSConfig", "load client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}

func appendCAFiles(pool *x509.CertPool, files []string) (*x509.CertPool, error) {
	for _, caFile := range files {
		caPEM, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file %s: %w", caFile, err)
		}
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("parse CA certificate from %s: invalid PEM data", caFile)
		}
	}
	return pool, nil
}

// parseTLSVersion maps "1.2" and "1.3" to crypto/tls constants. Anything
// else yields TLS 1.2.
func parseTLSVersion(version string) uint16 {
	switch version {
	case "1.3":
		return tls.VersionTLS13
	default:
		return tls.VersionTLS12
	}
}
