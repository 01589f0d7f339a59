package secrets

import (
	"errors"
	"fmt"
)

var (
	// ErrSecretNotFound indicates that the requested secret was not found in
	// the provider's storage.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrProviderError indicates a general error occurred within the
	// provider implementation.
	ErrProviderError = errors.New("provider error")

	// ErrInvalidRef indicates that the provided SecretRef is malformed
	// (e.g., empty path).
	ErrInvalidRef = errors.New("invalid secret reference")

	// ErrReadOnly indicates a write operation was attempted on a read-only
	// provider.
	ErrReadOnly = errors.New("provider is read-only")
)

// ProviderError wraps provider-specific errors with additional context. It
// preserves the original error while adding provider information for
// debugging.
type ProviderError struct {
	Provider string    // Name of the provider where the error occurred
	Ref      SecretRef // The secret reference that caused the error
	Err      error     // The underlying error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %q error for secret %q: %v", e.Provider, e.Ref.Path, e.Err)
}

// Unwrap returns the underlying error for error chain traversal.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapProviderError wraps a provider error with context, preserving the
// error chain for errors.Is and errors.As.
func WrapProviderError(provider string, ref SecretRef, err error, msg string) error {
	if err == nil {
		return nil
	}
	pe := &ProviderError{Provider: provider, Ref: ref, Err: err}
	return fmt.Errorf("%s: %w", msg, pe)
}

// IsProviderError checks if an error is a ProviderError or contains one in
// its chain.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}
