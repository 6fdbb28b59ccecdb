package config

// SecureString wraps a configuration value that must never be printed in
// logs or the config dump the executor logs at startup; callers that
// genuinely need the underlying value (building a DSN, a Redis client
// options struct) convert it explicitly with string(value).
type SecureString string

// MarshalYAML lets the config file round-trip the plaintext value while
// String (used for logging) stays redacted.
func (s SecureString) MarshalYAML() (any, error) {
	return string(s), nil
}

func (s SecureString) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}
