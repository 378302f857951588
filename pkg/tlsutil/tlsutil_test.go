package tlsutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowcanvas/pkg/security"
)

type testCA struct {
	cert    *x509.Certificate
	key     *ecdsa.PrivateKey
	pemFile string
}

func newTestCA(t *testing.T, dir string) *testCA {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	pemFile := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(pemFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644))
	return &testCA{cert: cert, key: key, pemFile: pemFile}
}

// issue signs a leaf for cn and returns its cert and key files.
func (ca *testCA) issue(t *testing.T, dir, cn string, usage x509.ExtKeyUsage) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{usage},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:     []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca.cert, &key.PublicKey, ca.key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certFile := filepath.Join(dir, cn+".pem")
	keyFile := filepath.Join(dir, cn+"-key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certFile, keyFile
}

func TestLoadServerTLSConfig(t *testing.T) {
	dir := t.TempDir()
	ca := newTestCA(t, dir)
	certFile, keyFile := ca.issue(t, dir, "gateway", x509.ExtKeyUsageServerAuth)

	tests := []struct {
		name    string
		cfg     security.ServerTLSConfig
		wantNil bool
		wantErr bool
		check   func(t *testing.T, c *tls.Config)
	}{
		{name: "disabled", cfg: security.ServerTLSConfig{}, wantNil: true},
		{
			name: "manual cert defaults to 1.2",
			cfg:  security.ServerTLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile},
			check: func(t *testing.T, c *tls.Config) {
				assert.Len(t, c.Certificates, 1)
				assert.Equal(t, uint16(tls.VersionTLS12), c.MinVersion)
				assert.Equal(t, tls.NoClientCert, c.ClientAuth)
			},
		},
		{
			name: "tls 1.3",
			cfg:  security.ServerTLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile, MinVersion: "1.3"},
			check: func(t *testing.T, c *tls.Config) {
				assert.Equal(t, uint16(tls.VersionTLS13), c.MinVersion)
			},
		},
		{
			name: "required client certs",
			cfg: security.ServerTLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile,
				MTLS: security.ServerMTLSConfig{Enabled: true, ClientCAFiles: []string{ca.pemFile}, RequireClientCert: true}},
			check: func(t *testing.T, c *tls.Config) {
				assert.Equal(t, tls.RequireAndVerifyClientCert, c.ClientAuth)
				assert.NotNil(t, c.ClientCAs)
				assert.Nil(t, c.VerifyPeerCertificate)
			},
		},
		{
			name: "optional client certs with CN list",
			cfg: security.ServerTLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile,
				MTLS: security.ServerMTLSConfig{Enabled: true, ClientCAFiles: []string{ca.pemFile}, AllowedClientCNs: []string{"cli"}}},
			check: func(t *testing.T, c *tls.Config) {
				assert.Equal(t, tls.VerifyClientCertIfGiven, c.ClientAuth)
				assert.NotNil(t, c.VerifyPeerCertificate)
			},
		},
		{
			name:    "missing cert",
			cfg:     security.ServerTLSConfig{Enabled: true, CertFile: filepath.Join(dir, "nope.pem"), KeyFile: keyFile},
			wantErr: true,
		},
		{
			name: "missing client CA",
			cfg: security.ServerTLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile,
				MTLS: security.ServerMTLSConfig{Enabled: true, ClientCAFiles: []string{filepath.Join(dir, "nope.pem")}}},
			wantErr: true,
		},
		{
			name: "client CA is not PEM",
			cfg: security.ServerTLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile,
				MTLS: security.ServerMTLSConfig{Enabled: true, ClientCAFiles: []string{keyFile}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := LoadServerTLSConfig(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, c)
				return
			}
			require.NotNil(t, c)
			tt.check(t, c)
		})
	}
}

func TestLoadClientTLSConfig(t *testing.T) {
	dir := t.TempDir()
	ca := newTestCA(t, dir)
	certFile, keyFile := ca.issue(t, dir, "cli", x509.ExtKeyUsageClientAuth)

	t.Run("system pool only", func(t *testing.T) {
		c, err := LoadClientTLSConfig(security.ClientTLSConfig{})
		require.NoError(t, err)
		assert.NotNil(t, c.RootCAs)
		assert.False(t, c.InsecureSkipVerify)
		assert.Empty(t, c.Certificates)
	})

	t.Run("extra CA and client cert", func(t *testing.T) {
		c, err := LoadClientTLSConfig(security.ClientTLSConfig{
			CAFiles:    []string{ca.pemFile},
			MinVersion: "1.3",
			MTLS:       security.ClientMTLSConfig{Enabled: true, CertFile: certFile, KeyFile: keyFile},
		})
		require.NoError(t, err)
		assert.Len(t, c.Certificates, 1)
		assert.Equal(t, uint16(tls.VersionTLS13), c.MinVersion)
	})

	t.Run("insecure", func(t *testing.T) {
		c, err := LoadClientTLSConfig(security.ClientTLSConfig{InsecureSkipVerify: true})
		require.NoError(t, err)
		assert.True(t, c.InsecureSkipVerify)
	})

	t.Run("missing CA", func(t *testing.T) {
		_, err := LoadClientTLSConfig(security.ClientTLSConfig{CAFiles: []string{filepath.Join(dir, "nope.pem")}})
		assert.Error(t, err)
	})

	t.Run("missing client key", func(t *testing.T) {
		_, err := LoadClientTLSConfig(security.ClientTLSConfig{
			MTLS: security.ClientMTLSConfig{Enabled: true, CertFile: certFile, KeyFile: filepath.Join(dir, "nope.pem")},
		})
		assert.Error(t, err)
	})
}

func TestVerifyAllowedClientCN(t *testing.T) {
	leaf := &x509.Certificate{Subject: pkix.Name{CommonName: "cli"}}
	chains := [][]*x509.Certificate{{leaf}}

	assert.NoError(t, verifyAllowedClientCN(chains, []string{"other", "cli"}))
	assert.ErrorContains(t, verifyAllowedClientCN(chains, []string{"other"}), `"cli"`)
	assert.Error(t, verifyAllowedClientCN(nil, []string{"cli"}))
}

func TestParseTLSVersion(t *testing.T) {
	assert.Equal(t, uint16(tls.VersionTLS13), parseTLSVersion("1.3"))
	assert.Equal(t, uint16(tls.VersionTLS12), parseTLSVersion("1.2"))
	assert.Equal(t, uint16(tls.VersionTLS12), parseTLSVersion(""))
	assert.Equal(t, uint16(tls.VersionTLS12), parseTLSVersion("1.0"))
}

func TestMutualTLSHandshake(t *testing.T) {
	dir := t.TempDir()
	ca := newTestCA(t, dir)
	serverCert, serverKey := ca.issue(t, dir, "gateway", x509.ExtKeyUsageServerAuth)
	allowedCert, allowedKey := ca.issue(t, dir, "cli", x509.ExtKeyUsageClientAuth)
	otherCert, otherKey := ca.issue(t, dir, "intruder", x509.ExtKeyUsageClientAuth)

	serverCfg, err := LoadServerTLSConfig(security.ServerTLSConfig{
		Enabled: true, CertFile: serverCert, KeyFile: serverKey,
		MTLS: security.ServerMTLSConfig{
			Enabled:           true,
			ClientCAFiles:     []string{ca.pemFile},
			RequireClientCert: true,
			AllowedClientCNs:  []string{"cli"},
		},
	})
	require.NoError(t, err)

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	srv.TLS = serverCfg
	srv.StartTLS()
	t.Cleanup(srv.Close)

	get := func(t *testing.T, mtls security.ClientMTLSConfig) error {
		t.Helper()
		clientCfg, err := LoadClientTLSConfig(security.ClientTLSConfig{CAFiles: []string{ca.pemFile}, MTLS: mtls})
		require.NoError(t, err)
		client := &http.Client{Transport: &http.Transport{TLSClientConfig: clientCfg}, Timeout: 5 * time.Second}
		resp, err := client.Get(srv.URL)
		if err != nil {
			return err
		}
		_ = resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		return nil
	}

	t.Run("allowed client", func(t *testing.T) {
		assert.NoError(t, get(t, security.ClientMTLSConfig{Enabled: true, CertFile: allowedCert, KeyFile: allowedKey}))
	})
	t.Run("CN not allowed", func(t *testing.T) {
		assert.Error(t, get(t, security.ClientMTLSConfig{Enabled: true, CertFile: otherCert, KeyFile: otherKey}))
	})
	t.Run("no client cert", func(t *testing.T) {
		assert.Error(t, get(t, security.ClientMTLSConfig{}))
	})
}
