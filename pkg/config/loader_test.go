package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sserr "github.com/StricklySoft/stricklysoft-gatekeeper/pkg/errors"
)

// ===========================================================================
// Test Types
// ===========================================================================

type basicConfig struct {
	Addr    string        `env:"ADDR" envDefault:":8080" yaml:"addr" json:"addr"`
	Port    int           `env:"PORT" envDefault:"8080" yaml:"port" json:"port"`
	Debug   bool          `env:"DEBUG" envDefault:"false" yaml:"debug" json:"debug"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s" yaml:"timeout" json:"timeout"`
}

type providerConfig struct {
	BaseURL    string `env:"BASE_URL" yaml:"base_url" required:"true"`
	ServiceKey Secret `env:"SERVICE_KEY" yaml:"service_key"`
}

type nestedConfig struct {
	Name     string         `env:"NAME" yaml:"name"`
	Provider providerConfig `env:"PROVIDER" yaml:"provider"`
	Paths    []string       `env:"PATHS" envDefault:"/health,/metrics" yaml:"paths"`
	Conns    int32          `env:"CONNS" envDefault:"25" yaml:"conns"`
}

// fillingConfig fills a derived default in Validate.
type fillingConfig struct {
	TTL time.Duration `env:"TTL" yaml:"ttl"`
}

func (c *fillingConfig) Validate() error {
	if c.TTL < 0 {
		return sserr.New(sserr.CodeValidation, "config: ttl must not be negative")
	}
	if c.TTL == 0 {
		c.TTL = 10 * time.Minute
	}
	return nil
}

type withNestedValidator struct {
	Cache fillingConfig `env:"CACHE" yaml:"cache"`
}

type stdlibValidatorConfig struct {
	Name string `env:"NAME"`
}

func (c *stdlibValidatorConfig) Validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

// envMap is a fake environment for Loader.WithLookup.
func envMap(kv ...string) func(string) (string, bool) {
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writeTestFile() error: %v", err)
	}
	return path
}

func requireCode(t *testing.T, err error, want sserr.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("error = nil, want code %s", want)
	}
	if got := sserr.GetCode(err); got != want {
		t.Fatalf("error code = %s, want %s (error: %v)", got, want, err)
	}
}

// ===========================================================================
// Load argument checks
// ===========================================================================

func TestLoader_Load_InvalidTargets(t *testing.T) {
	t.Parallel()
	var nilCfg *basicConfig
	n := 5
	for name, target := range map[string]any{
		"nil pointer":       nilCfg,
		"non pointer":       basicConfig{},
		"pointer to scalar": &n,
	} {
		err := New().WithLookup(envMap()).Load(target)
		if got := sserr.GetCode(err); got != sserr.CodeInternalConfiguration {
			t.Errorf("%s: code = %s, want %s", name, got, sserr.CodeInternalConfiguration)
		}
	}
}

// ===========================================================================
// Layering
// ===========================================================================

func TestLoader_Load_Defaults(t *testing.T) {
	t.Parallel()
	var cfg basicConfig
	if err := New().WithLookup(envMap()).Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.Port != 8080 || cfg.Debug || cfg.Timeout != 30*time.Second {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
}

func TestLoader_Load_DefaultsDoNotOverwrite(t *testing.T) {
	t.Parallel()
	cfg := basicConfig{Addr: ":9000"}
	if err := New().WithLookup(envMap()).Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Addr != ":9000" {
		t.Errorf("Addr = %q, want %q", cfg.Addr, ":9000")
	}
}

func TestLoader_Load_YAMLFile(t *testing.T) {
	t.Parallel()
	path := writeTestFile(t, "gatekeeper.yaml", "addr: \":7000\"\ntimeout: 5s\ndebug: true\n")

	var cfg basicConfig
	if err := New().WithFile(path).WithLookup(envMap()).Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Addr != ":7000" {
		t.Errorf("Addr = %q, want %q", cfg.Addr, ":7000")
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", cfg.Timeout)
	}
	if !cfg.Debug {
		t.Error("Debug = false, want true")
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want default 8080", cfg.Port)
	}
}

func TestLoader_Load_JSONFile(t *testing.T) {
	t.Parallel()
	path := writeTestFile(t, "gatekeeper.json", `{"addr":":7001","port":7001}`)

	var cfg basicConfig
	if err := New().WithFile(path).WithLookup(envMap()).Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Addr != ":7001" || cfg.Port != 7001 {
		t.Errorf("Load() = %+v, want addr :7001 port 7001", cfg)
	}
}

func TestLoader_Load_FileErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"unsupported extension", func(t *testing.T) string { return writeTestFile(t, "cfg.toml", "addr = 1") }},
		{"directory traversal", func(*testing.T) string { return "../etc/gatekeeper.yaml" }},
		{"invalid yaml", func(t *testing.T) string { return writeTestFile(t, "cfg.yaml", "addr: [unclosed") }},
		{"invalid json", func(t *testing.T) string { return writeTestFile(t, "cfg.json", "{") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var cfg basicConfig
			err := New().WithFile(tt.path(t)).WithLookup(envMap()).Load(&cfg)
			requireCode(t, err, sserr.CodeInternalConfiguration)
		})
	}
}

func TestLoader_Load_MissingFileIsIgnored(t *testing.T) {
	t.Parallel()
	var cfg basicConfig
	path := filepath.Join(t.TempDir(), "absent.yaml")
	if err := New().WithFile(path).WithLookup(envMap()).Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, want default", cfg.Addr)
	}
}

func TestLoader_Load_PriorityOrder(t *testing.T) {
	t.Parallel()
	path := writeTestFile(t, "cfg.yaml", "addr: \":7000\"\nport: 7000\n")

	var cfg basicConfig
	err := New().
		WithFile(path).
		WithEnvPrefix("gatekeeper").
		WithLookup(envMap("GATEKEEPER_PORT", "6000")).
		Load(&cfg)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Port != 6000 {
		t.Errorf("Port = %d, want env value 6000", cfg.Port)
	}
	if cfg.Addr != ":7000" {
		t.Errorf("Addr = %q, want file value", cfg.Addr)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want default", cfg.Timeout)
	}
}

func TestLoader_Load_NestedEnvPrefix(t *testing.T) {
	t.Parallel()
	var cfg nestedConfig
	err := New().WithEnvPrefix("GK").WithLookup(envMap(
		"GK_NAME", "gatekeeper",
		"GK_PROVIDER_BASE_URL", "https://idp.example",
		"GK_PROVIDER_SERVICE_KEY", "s3cret",
		"GK_PATHS", " /a , /b ",
		"GK_CONNS", "7",
	)).Load(&cfg)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Provider.BaseURL != "https://idp.example" {
		t.Errorf("Provider.BaseURL = %q", cfg.Provider.BaseURL)
	}
	if cfg.Provider.ServiceKey.Value() != "s3cret" {
		t.Errorf("Provider.ServiceKey not loaded")
	}
	if strings.Join(cfg.Paths, "|") != "/a|/b" {
		t.Errorf("Paths = %v, want [/a /b]", cfg.Paths)
	}
	if cfg.Conns != 7 {
		t.Errorf("Conns = %d, want 7", cfg.Conns)
	}
}

func TestLoader_Load_SliceAndInt32Defaults(t *testing.T) {
	t.Parallel()
	var cfg nestedConfig
	err := New().WithLookup(envMap("PROVIDER_BASE_URL", "https://idp.example")).Load(&cfg)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.Paths) != 2 || cfg.Paths[0] != "/health" {
		t.Errorf("Paths = %v, want default list", cfg.Paths)
	}
	if cfg.Conns != 25 {
		t.Errorf("Conns = %d, want 25", cfg.Conns)
	}
}

func TestLoader_Load_InvalidEnvValues(t *testing.T) {
	t.Parallel()
	for _, kv := range [][2]string{
		{"PORT", "eighty"},
		{"DEBUG", "maybe"},
		{"TIMEOUT", "soon"},
	} {
		var cfg basicConfig
		err := New().WithLookup(envMap(kv[0], kv[1])).Load(&cfg)
		if got := sserr.GetCode(err); got != sserr.CodeInternalConfiguration {
			t.Errorf("%s=%s: code = %s, want %s", kv[0], kv[1], got, sserr.CodeInternalConfiguration)
		}
	}
}

func TestLoader_Load_SecretFromFile(t *testing.T) {
	t.Parallel()
	keyFile := writeTestFile(t, "service_key", "mounted-key\n")
	var cfg nestedConfig
	err := New().WithLookup(envMap(
		"PROVIDER_BASE_URL", "https://idp.example",
		"PROVIDER_SERVICE_KEY_FILE", keyFile,
	)).Load(&cfg)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Provider.ServiceKey.Value() != "mounted-key" {
		t.Errorf("ServiceKey = %q, want %q", cfg.Provider.ServiceKey.Value(), "mounted-key")
	}
}

func TestLoader_Load_SecretEnvBeatsFile(t *testing.T) {
	t.Parallel()
	keyFile := writeTestFile(t, "service_key", "from-file")
	var cfg nestedConfig
	err := New().WithLookup(envMap(
		"PROVIDER_BASE_URL", "https://idp.example",
		"PROVIDER_SERVICE_KEY", "from-env",
		"PROVIDER_SERVICE_KEY_FILE", keyFile,
	)).Load(&cfg)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Provider.ServiceKey.Value() != "from-env" {
		t.Errorf("ServiceKey = %q, want %q", cfg.Provider.ServiceKey.Value(), "from-env")
	}
}

func TestLoader_Load_SecretFileMissing(t *testing.T) {
	t.Parallel()
	var cfg nestedConfig
	err := New().WithLookup(envMap(
		"PROVIDER_BASE_URL", "https://idp.example",
		"PROVIDER_SERVICE_KEY_FILE", filepath.Join(t.TempDir(), "absent"),
	)).Load(&cfg)
	requireCode(t, err, sserr.CodeInternalConfiguration)
}

func TestLoader_Load_FileSuffixIgnoredForPlainFields(t *testing.T) {
	t.Parallel()
	path := writeTestFile(t, "base_url", "https://file.example")
	var cfg nestedConfig
	err := New().WithLookup(envMap(
		"PROVIDER_BASE_URL", "https://idp.example",
		"NAME_FILE", path,
	)).Load(&cfg)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Name != "" {
		t.Errorf("Name = %q, want empty", cfg.Name)
	}
}

// ===========================================================================
// Validation
// ===========================================================================

func TestLoader_Load_NestedRequiredMissing(t *testing.T) {
	t.Parallel()
	var cfg nestedConfig
	err := New().WithLookup(envMap()).Load(&cfg)
	requireCode(t, err, sserr.CodeValidationRequired)
	if !strings.Contains(err.Error(), "Provider.BaseURL") {
		t.Errorf("error %q does not name the field path", err)
	}
}

func TestLoader_Load_NestedValidatorFillsDefaults(t *testing.T) {
	t.Parallel()
	var cfg withNestedValidator
	if err := New().WithLookup(envMap()).Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Cache.TTL != 10*time.Minute {
		t.Errorf("Cache.TTL = %v, want 10m filled by Validate", cfg.Cache.TTL)
	}
}

func TestLoader_Load_NestedValidatorError(t *testing.T) {
	t.Parallel()
	var cfg withNestedValidator
	err := New().WithLookup(envMap("CACHE_TTL", "-1s")).Load(&cfg)
	requireCode(t, err, sserr.CodeValidation)
}

func TestLoader_Load_StdlibValidatorErrorIsWrapped(t *testing.T) {
	t.Parallel()
	var cfg stdlibValidatorConfig
	err := New().WithLookup(envMap()).Load(&cfg)
	requireCode(t, err, sserr.CodeValidation)
	if !strings.Contains(fmt.Sprint(errors.Unwrap(err)), "name is required") {
		t.Errorf("cause = %v, want the validator's error", errors.Unwrap(err))
	}
}

func TestLoader_DefaultLookupReadsProcessEnv(t *testing.T) {
	t.Setenv("GKTEST_ADDR", ":5555")
	var cfg basicConfig
	if err := New().WithEnvPrefix("GKTEST").Load(&cfg); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Addr != ":5555" {
		t.Errorf("Addr = %q, want %q", cfg.Addr, ":5555")
	}
}

// ===========================================================================
// MustLoad
// ===========================================================================

func TestMustLoad(t *testing.T) {
	t.Parallel()
	cfg := MustLoad[basicConfig](New().WithLookup(envMap("ADDR", ":1")))
	if cfg.Addr != ":1" {
		t.Errorf("Addr = %q, want %q", cfg.Addr, ":1")
	}

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("MustLoad() did not panic on a missing required field")
		}
		if !strings.Contains(fmt.Sprint(r), "MustLoad failed") {
			t.Errorf("panic = %v", r)
		}
	}()
	_ = MustLoad[nestedConfig](New().WithLookup(envMap()))
}

// ===========================================================================
// Secret
// ===========================================================================

func TestSecret_Redacted(t *testing.T) {
	t.Parallel()
	s := Secret("service-role-key")

	if s.String() != "[REDACTED]" || fmt.Sprintf("%#v", s) != "[REDACTED]" {
		t.Errorf("fmt output leaks the secret")
	}
	if s.Value() != "service-role-key" {
		t.Errorf("Value() = %q", s.Value())
	}

	out, err := json.Marshal(struct {
		Key Secret `json:"key"`
	}{Key: s})
	if err != nil {
		t.Fatalf("json.Marshal() error: %v", err)
	}
	if string(out) != `{"key":"[REDACTED]"}` {
		t.Errorf("json = %s", out)
	}

	var buf bytes.Buffer
	slog.New(slog.NewTextHandler(&buf, nil)).Info("config", "key", s)
	if strings.Contains(buf.String(), "service-role-key") {
		t.Errorf("slog output leaks the secret: %s", buf.String())
	}
}
