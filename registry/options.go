package registry

import (
	"time"

	"oras.land/oras-go/v2/registry/remote/auth"
)

// ClientOptions contains configuration for the Client.
type ClientOptions struct {
	// StaticRegistry, StaticUsername, and StaticPassword provide fixed
	// credentials for a single registry.
	StaticRegistry string
	StaticUsername string
	StaticPassword string

	// CredentialFunc overrides credential resolution for all registries.
	// Takes precedence over static credentials.
	CredentialFunc auth.CredentialFunc

	// PlainHTTPRegistries lists registries reached over HTTP instead of
	// HTTPS. Useful for local registries in tests.
	PlainHTTPRegistries []string

	// MaxRetries is the number of retry attempts after a retryable failure.
	MaxRetries int

	// RetryDelay is the base delay between attempts; it doubles each retry.
	RetryDelay time.Duration

	// API overrides the registry backend. Used in tests.
	API API
}

// Option is a functional option for configuring the Client.
type Option func(*ClientOptions)

// DefaultClientOptions returns the default client options: Docker
// credential chain, HTTPS, three retries two seconds apart.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
	}
}

// WithStaticAuth configures fixed credentials for a specific registry.
// Other registries keep the default credential chain.
func WithStaticAuth(registry, username, password string) Option {
	return func(opts *ClientOptions) {
		opts.StaticRegistry = registry
		opts.StaticUsername = username
		opts.StaticPassword = password
	}
}

// WithCredentialFunc configures a custom credential callback. It overrides
// credential resolution for all registries and must be safe for concurrent
// use.
func WithCredentialFunc(fn auth.CredentialFunc) Option {
	return func(opts *ClientOptions) {
		opts.CredentialFunc = fn
	}
}

// WithPlainHTTP enables HTTP for the listed registries. An empty list
// enables HTTP for all registries.
func WithPlainHTTP(registries ...string) Option {
	return func(opts *ClientOptions) {
		if len(registries) == 0 {
			opts.PlainHTTPRegistries = []string{"*"}
			return
		}
		opts.PlainHTTPRegistries = registries
	}
}

// WithRetry configures the retry policy for push and tag operations.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(opts *ClientOptions) {
		opts.MaxRetries = maxRetries
		opts.RetryDelay = delay
	}
}

// WithAPI injects a custom registry backend. Primarily for tests.
func WithAPI(api API) Option {
	return func(opts *ClientOptions) {
		opts.API = api
	}
}

func (o ClientOptions) allowsPlainHTTP(registryHost string) bool {
	for _, r := range o.PlainHTTPRegistries {
		if r == "*" || r == registryHost {
			return true
		}
	}
	return false
}
