// Package secrets provides provider-agnostic secret resolution for pipeline
// stages with automatic memory cleanup and just-in-time resolution.
//
// Secrets are referenced by SecretRef in the pipeline definition and
// resolved immediately before a stage runs. Values live only in the stage's
// process environment and, optionally, auto-clear their in-process copy
// after first use.
package secrets

import "time"

// Secret represents a resolved secret value with metadata. It provides
// secure handling of sensitive data with automatic cleanup capabilities.
type Secret struct {
	// Value contains the secret data as bytes. Never log or expose it.
	Value []byte

	// Version indicates the version of this secret (useful for rotation
	// tracking).
	Version string

	// CreatedAt records when this secret was created.
	CreatedAt time.Time

	// ExpiresAt indicates when this secret expires (nil means no
	// expiration).
	ExpiresAt *time.Time

	// AutoClear controls whether accessor methods clear memory after use.
	AutoClear bool
}

// SecretRef references a secret without containing its value. Pipeline
// definitions carry refs; values are resolved on demand.
type SecretRef struct {
	// Path identifies the secret location (e.g., "ci/registry-token").
	Path string

	// Version selects a specific version (empty for latest).
	Version string

	// Metadata contains additional provider-specific information.
	Metadata map[string]string
}

// String returns the secret value as a string. If AutoClear is enabled, the
// in-process copy is cleared after this call.
func (s *Secret) String() string {
	if s.Value == nil {
		return ""
	}

	value := string(s.Value)
	if s.AutoClear {
		s.Clear()
	}
	return value
}

// Bytes returns a copy of the secret value. If AutoClear is enabled, the
// in-process copy is cleared after this call.
func (s *Secret) Bytes() []byte {
	if s.Value == nil {
		return nil
	}

	value := make([]byte, len(s.Value))
	copy(value, s.Value)
	if s.AutoClear {
		s.Clear()
	}
	return value
}

// Clear zeros the secret value in memory so sensitive data does not linger
// after use.
func (s *Secret) Clear() {
	if s.Value == nil {
		return
	}
	for i := range s.Value {
		s.Value[i] = 0
	}
	s.Value = nil
}
