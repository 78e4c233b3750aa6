package config

import "log/slog"

const redacted = "[REDACTED]"

// Secret holds a credential such as a database password or the identity
// provider's service key. fmt, slog and encoding/json all print it as
// "[REDACTED]"; call Value for the raw string.
type Secret string

func (s Secret) String() string { return redacted }

func (s Secret) GoString() string { return redacted }

// LogValue keeps slog from printing the credential.
func (s Secret) LogValue() slog.Value { return slog.StringValue(redacted) }

// Value returns the raw credential.
func (s Secret) Value() string { return string(s) }

// MarshalText redacts the secret in JSON and YAML output.
func (s Secret) MarshalText() ([]byte, error) { return []byte(redacted), nil }
