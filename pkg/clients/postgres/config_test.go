package postgres

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSSLMode_Valid(t *testing.T) {
	for _, m := range []SSLMode{SSLModeDisable, SSLModeAllow, SSLModePrefer, SSLModeRequire, SSLModeVerifyCA, SSLModeVerifyFull} {
		if !m.Valid() {
			t.Errorf("%q.Valid() = false, want true", m)
		}
	}
	if SSLMode("sometimes").Valid() {
		t.Error(`"sometimes".Valid() = true, want false`)
	}
}

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() error: %v", err)
	}
	if cfg.Database != DefaultDatabase || cfg.SSLMode != SSLModePrefer {
		t.Errorf("DefaultConfig() = %+v", cfg)
	}
}

func TestConfig_Validate_AppliesDefaults(t *testing.T) {
	cfg := Config{Database: "gatekeeper", User: "gatekeeper"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if cfg.Host != DefaultHost || cfg.Port != DefaultPort {
		t.Errorf("host/port = %s:%d, want defaults", cfg.Host, cfg.Port)
	}
	if cfg.MaxConns != DefaultMaxConns || cfg.MinConns != DefaultMinConns {
		t.Errorf("pool = %d/%d, want defaults", cfg.MaxConns, cfg.MinConns)
	}
	if cfg.ConnectTimeout != DefaultConnectTimeout || cfg.HealthCheckPeriod != DefaultHealthCheckPeriod {
		t.Errorf("timeouts not defaulted: %+v", cfg)
	}
}

func TestConfig_Validate_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"empty database", Config{User: "u"}, "database"},
		{"empty user", Config{Database: "d"}, "user"},
		{"port too high", Config{Database: "d", User: "u", Port: 70000}, "port"},
		{"negative port", Config{Database: "d", User: "u", Port: -1}, "port"},
		{"bad ssl mode", Config{Database: "d", User: "u", SSLMode: "sometimes"}, "ssl_mode"},
		{"missing root cert", Config{Database: "d", User: "u", SSLRootCert: "/nonexistent/ca.pem"}, "ssl_root_cert"},
		{"max below min", Config{Database: "d", User: "u", MaxConns: 2, MinConns: 5}, "max_conns"},
		{"negative conns", Config{Database: "d", User: "u", MaxConns: -1}, "negative"},
		{"negative timeout", Config{Database: "d", User: "u", ConnectTimeout: -time.Second}, "negative"},
		{"bad uri scheme", Config{URI: "mysql://host/db"}, "scheme"},
		{"unparseable uri", Config{URI: "postgres://[::1"}, "URI"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestConfig_Validate_URISkipsStructuredFields(t *testing.T) {
	for _, uri := range []string{"postgres://u:p@db:5432/gatekeeper", "postgresql://db/gatekeeper"} {
		cfg := Config{URI: uri}
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate(%q) error: %v", uri, err)
		}
		if cfg.MaxConns != DefaultMaxConns {
			t.Errorf("pool defaults not applied for URI config")
		}
	}
}

func TestConfig_ConnectionString(t *testing.T) {
	cfg := Config{URI: "postgres://x/y"}
	if got := cfg.ConnectionString(); got != "postgres://x/y" {
		t.Errorf("URI passthrough = %q", got)
	}

	cfg = Config{
		Host:           "db.internal",
		Port:           5433,
		Database:       "gatekeeper",
		User:           "gk",
		Password:       "p@ss:w/rd",
		SSLMode:        SSLModeRequire,
		ConnectTimeout: 7 * time.Second,
	}
	u, err := url.Parse(cfg.ConnectionString())
	if err != nil {
		t.Fatalf("ConnectionString() is not a URL: %v", err)
	}
	if u.Host != "db.internal:5433" || u.Path != "/gatekeeper" {
		t.Errorf("host/path = %s %s", u.Host, u.Path)
	}
	if pw, _ := u.User.Password(); pw != "p@ss:w/rd" {
		t.Errorf("password did not round-trip: %q", pw)
	}
	if u.Query().Get("sslmode") != "require" || u.Query().Get("connect_timeout") != "7" {
		t.Errorf("query = %s", u.RawQuery)
	}
}

func TestConfig_tlsConfig(t *testing.T) {
	cfg := Config{SSLMode: SSLModeRequire}
	if tlsCfg, err := cfg.tlsConfig(); err != nil || tlsCfg != nil {
		t.Errorf("no root cert: tlsConfig() = %v, %v; want nil, nil", tlsCfg, err)
	}

	bad := filepath.Join(t.TempDir(), "bad.pem")
	if err := os.WriteFile(bad, []byte("not a certificate"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg = Config{SSLMode: SSLModeVerifyFull, SSLRootCert: bad}
	if _, err := cfg.tlsConfig(); err == nil {
		t.Error("invalid PEM: tlsConfig() error = nil")
	}

	cfg = Config{SSLMode: SSLModeVerifyCA, SSLRootCert: filepath.Join(t.TempDir(), "absent.pem")}
	if _, err := cfg.tlsConfig(); err == nil {
		t.Error("missing file: tlsConfig() error = nil")
	}
}

func TestConfig_tlsConfig_VerifyCARejectsNoCerts(t *testing.T) {
	path := writeTestCA(t)
	cfg := Config{Host: "db", SSLMode: SSLModeVerifyCA, SSLRootCert: path}
	tlsCfg, err := cfg.tlsConfig()
	if err != nil {
		t.Fatalf("tlsConfig() error: %v", err)
	}
	if !tlsCfg.InsecureSkipVerify || tlsCfg.VerifyConnection == nil {
		t.Fatal("verify-ca should replace hostname verification with a chain check")
	}
	if err := tlsCfg.VerifyConnection(tls.ConnectionState{}); err == nil {
		t.Error("VerifyConnection() accepted a connection without certificates")
	}

	cfg.SSLMode = SSLModeVerifyFull
	tlsCfg, err = cfg.tlsConfig()
	if err != nil {
		t.Fatalf("tlsConfig() error: %v", err)
	}
	if tlsCfg.ServerName != "db" || tlsCfg.InsecureSkipVerify {
		t.Errorf("verify-full: ServerName = %q, InsecureSkipVerify = %v", tlsCfg.ServerName, tlsCfg.InsecureSkipVerify)
	}
}

func TestTruncateSQL(t *testing.T) {
	short := "SELECT 1"
	if truncateSQL(short) != short {
		t.Errorf("truncateSQL(short) changed the statement")
	}
	long := strings.Repeat("x", maxSQLTruncateLen+10)
	got := truncateSQL(long)
	if len(got) != maxSQLTruncateLen+3 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncateSQL(long) = %q", got)
	}
}

// writeTestCA writes a freshly generated self-signed CA certificate.
func writeTestCA(t *testing.T) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "gatekeeper-test-ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
