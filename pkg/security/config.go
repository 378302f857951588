// Package security holds the TLS settings shared by the engine client and
// the status gateway.
package security

// ServerTLSConfig configures TLS for the status gateway.
type ServerTLSConfig struct {
	Enabled    bool   `json:"enabled"`
	CertFile   string `json:"cert_file,omitempty"   validate:"required_if=Enabled true"`
	KeyFile    string `json:"key_file,omitempty"    validate:"required_if=Enabled true"`
	MinVersion string `json:"min_version,omitempty" validate:"omitempty,oneof=1.2 1.3"`

	MTLS ServerMTLSConfig `json:"mtls,omitempty"`
}

// ServerMTLSConfig makes the gateway verify client certificates.
type ServerMTLSConfig struct {
	Enabled           bool     `json:"enabled"`
	ClientCAFiles     []string `json:"client_ca_files,omitempty"     validate:"required_if=Enabled true"`
	RequireClientCert bool     `json:"require_client_cert,omitempty"` // false accepts clients without a certificate
	AllowedClientCNs  []string `json:"allowed_client_cns,omitempty"`
}

// ClientTLSConfig configures TLS toward the execution engine. The system
// CA bundle is always trusted; CAFiles are added to it.
type ClientTLSConfig struct {
	CAFiles            []string `json:"ca_files,omitempty"`
	InsecureSkipVerify bool     `json:"insecure_skip_verify,omitempty"` // development only
	MinVersion         string   `json:"min_version,omitempty" validate:"omitempty,oneof=1.2 1.3"`

	MTLS ClientMTLSConfig `json:"mtls,omitempty"`
}

// ClientMTLSConfig supplies a client certificate to the engine.
type ClientMTLSConfig struct {
	Enabled  bool   `json:"enabled"`
	CertFile string `json:"cert_file,omitempty" validate:"required_if=Enabled true"`
	KeyFile  string `json:"key_file,omitempty"  validate:"required_if=Enabled true"`
}

// Configured reports whether c differs from plain system-trust TLS.
func (c ClientTLSConfig) Configured() bool {
	return len(c.CAFiles) > 0 || c.InsecureSkipVerify || c.MinVersion != "" || c.MTLS.Enabled
}
