// Package provider defines the config source abstraction.
//
// Grounded on the teacher's pkg/config/provider package; trimmed to the
// file provider since no SPEC_FULL.md component needs a remote config
// store (consul/etcd/zookeeper providers were dropped with it).
package provider

import (
	"context"
	"fmt"
)

// Type identifies the config source type.
type Type string

const TypeFile Type = "file"

// Provider abstracts config sources.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Type returns the provider type for logging/debugging.
	Type() Type

	// Load reads raw config bytes from the source.
	Load(ctx context.Context) ([]byte, error)

	// Watch starts watching for changes and signals via the returned channel.
	// The channel receives a value when config changes.
	// Cancel the context to stop watching.
	// Returns nil channel if watching is not supported.
	Watch(ctx context.Context) (<-chan struct{}, error)

	// Close releases any resources held by the provider.
	Close() error
}

// ProviderConfig configures provider creation.
type ProviderConfig struct {
	Type Type
	Path string
}

// New creates a Provider based on ProviderConfig.
func New(opts ProviderConfig) (Provider, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	return NewFileProvider(opts.Path)
}
